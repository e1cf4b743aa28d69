package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"coach-llm/internal/catalog"
	"coach-llm/internal/config"
	"coach-llm/internal/db"
	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
	"coach-llm/internal/service"
	"coach-llm/internal/templates"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	tmpl, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("cargar plantillas: %v", err)
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.Options{
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.LLMTemperature,
		MaxTokens:      cfg.LLMMaxTokens,
		Timeout:        cfg.LLMTimeout,
	}, logger)

	store := repository.NewMemorySessionStore(cfg.SessionTTL)
	locks := service.NewSessionLocks()

	programs, titles, err := loadPrograms(ctx, cfg, llmClient, logger)
	if err != nil {
		log.Fatalf("catalogo: %v", err)
	}

	composer := service.NewPromptComposer(tmpl, titles)
	convSvc := service.NewConversationService(tmpl, composer, store, llmClient, logger, service.WithSessionLocks(locks))
	matchSvc := service.NewMatchService(tmpl, composer, store, programs, llmClient, llmClient, locks, logger)

	for {
		fmt.Println("===== Coach CLI =====")
		variant, ok := chooseVariant(reader, tmpl)
		if !ok {
			return
		}
		locale := prompt(reader, fmt.Sprintf("Idioma %v (enter = %s): ", variant.LocaleCodes(), variant.DefaultLocale))

		session, err := convSvc.Create(ctx, variant.Key, locale)
		if err != nil {
			fmt.Printf("No se pudo crear la sesion: %v\n", err)
			continue
		}
		l, _ := variant.Locale(session.Locale)
		fmt.Printf("\n%s\n%s\n\n", l.Title, l.Welcome)

		goal := chooseGoal(reader, l)
		g, err := l.Goal(goal)
		if err != nil {
			fmt.Printf("Objetivo invalido: %v\n", err)
			continue
		}
		answers := askQuestions(reader, g)

		if variant.Kind == templates.KindMatch {
			matchLoop(ctx, reader, matchSvc, convSvc, session.ID, answers)
		} else {
			chatLoop(ctx, reader, convSvc, session.ID, goal, answers)
		}

		if !strings.EqualFold(prompt(reader, "¿Otra sesion? (s/N): "), "s") {
			return
		}
	}
}

// loadPrograms indexa el catalogo en Postgres si hay DATABASE_URL; si no, en memoria.
func loadPrograms(ctx context.Context, cfg *config.Config, embedder llm.Embedder, logger *zap.Logger) (repository.ProgramRepository, []string, error) {
	programs, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	titles := make([]string, 0, len(programs))
	seen := map[string]bool{}
	for _, p := range programs {
		if !seen[p.Title] {
			seen[p.Title] = true
			titles = append(titles, p.Title)
		}
	}
	sort.Strings(titles)

	var repo repository.ProgramRepository = repository.NewMemoryProgramRepository()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return nil, nil, err
		}
		repo = repository.NewPgProgramRepository(pool)
	}

	res, err := catalog.NewIndexer(repo, embedder, logger).Sync(ctx, programs)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("Catalogo listo: %d programas (%d embebidos, %d sin cambios)\n", len(programs), res.Embedded, res.Skipped)
	return repo, titles, nil
}

func chooseVariant(reader *bufio.Reader, tmpl *templates.Catalog) (*templates.Variant, bool) {
	for i, v := range tmpl.Variants {
		fmt.Printf("[%d] %s (%s)\n", i+1, v.Key, v.Kind)
	}
	fmt.Println("[0] Salir")
	for {
		choice := prompt(reader, "Elige variante: ")
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 0 || idx > len(tmpl.Variants) {
			fmt.Println("Opcion invalida")
			continue
		}
		if idx == 0 {
			return nil, false
		}
		return tmpl.Variants[idx-1], true
	}
}

func chooseGoal(reader *bufio.Reader, l *templates.Locale) string {
	if len(l.Goals) == 1 {
		return l.Goals[0].Key
	}
	if l.GoalPrompt != "" {
		fmt.Println(l.GoalPrompt)
	}
	for i, g := range l.Goals {
		fmt.Printf("[%d] %s\n", i+1, g.Label)
	}
	for {
		idx, err := strconv.Atoi(prompt(reader, "> "))
		if err == nil && idx >= 1 && idx <= len(l.Goals) {
			return l.Goals[idx-1].Key
		}
		fmt.Println("Opcion invalida")
	}
}

// askQuestions recorre el formulario; en preguntas de opcion acepta numeros separados por coma.
func askQuestions(reader *bufio.Reader, g *templates.Goal) domain.AnswerSet {
	if g.Intro != "" {
		fmt.Println(g.Intro)
	}
	answers := domain.AnswerSet{}
	for _, q := range g.Questions {
		label := q.Label
		if q.Required {
			label += " *"
		}
		fmt.Println(label)
		if q.Hint != "" {
			fmt.Printf("  (%s)\n", q.Hint)
		}
		if !q.IsChoice() {
			if text := prompt(reader, "> "); text != "" {
				answers[q.Key] = domain.AnswerValue{text}
			}
			continue
		}
		for i, o := range q.Options {
			fmt.Printf("  [%d] %s\n", i+1, o.Label)
		}
		var picked domain.AnswerValue
		for _, part := range strings.Split(prompt(reader, "> "), ",") {
			idx, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || idx < 1 || idx > len(q.Options) {
				continue
			}
			picked = append(picked, q.Options[idx-1].Value)
			if q.Kind == templates.QuestionSingle {
				break
			}
		}
		if len(picked) > 0 {
			answers[q.Key] = picked
		}
	}
	return answers
}

func chatLoop(ctx context.Context, reader *bufio.Reader, svc *service.ConversationService, id, goal string, answers domain.AnswerSet) {
	session, err := svc.Start(ctx, id, goal, answers)
	if err != nil {
		printError(err)
		return
	}
	printLastAssistant(session)

	for {
		view, err := svc.View(session)
		if err == nil && view.CTA != nil {
			printCTA(view.CTA)
			return
		}
		if err == nil {
			fmt.Printf("(quedan %d mensajes)\n", view.Remaining)
		}
		text := prompt(reader, "Tu: ")
		switch strings.ToLower(text) {
		case "":
			continue
		case "/salir", "/exit":
			return
		case "/reiniciar", "/restart":
			if _, err := svc.Restart(ctx, id); err != nil {
				printError(err)
				return
			}
			if session, err = svc.Start(ctx, id, goal, answers); err != nil {
				printError(err)
				return
			}
			printLastAssistant(session)
			continue
		}

		var reply domain.Message
		session, reply, err = svc.Send(ctx, id, text)
		if err != nil {
			printError(err)
			if errors.Is(err, service.ErrSessionLimited) {
				return
			}
			continue
		}
		fmt.Printf("Coach: %s\n\n", reply.Content)
	}
}

func matchLoop(ctx context.Context, reader *bufio.Reader, svc *service.MatchService, conv *service.ConversationService, id string, answers domain.AnswerSet) {
	for {
		session, matches, err := svc.Match(ctx, id, answers)
		if err != nil {
			printError(err)
			return
		}
		if len(matches) == 0 {
			fmt.Println("Sin resultados para estos filtros.")
		}
		for i, m := range matches {
			p := m.Program
			fmt.Printf("%d. %s (%s, %s) - %s\n", i+1, p.Title, p.Degree, p.StudyForm, strings.Join(p.Locations, ", "))
			fmt.Printf("   %s\n", m.Explanation)
		}

		view, err := conv.View(session)
		if err != nil {
			printError(err)
			return
		}
		if view.CTA != nil {
			printCTA(view.CTA)
			return
		}
		if !strings.EqualFold(prompt(reader, fmt.Sprintf("¿Buscar de nuevo? (quedan %d) (s/N): ", view.Remaining)), "s") {
			return
		}
	}
}

func printLastAssistant(s domain.Session) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == domain.RoleAssistant {
			fmt.Printf("Coach: %s\n\n", s.Messages[i].Content)
			return
		}
	}
}

func printCTA(cta *templates.CTA) {
	fmt.Printf("\n== %s ==\n%s\n%s: %s\n\n", cta.Title, cta.Body, cta.LinkLabel, cta.LinkURL)
}

func printError(err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		fmt.Printf("Respuestas invalidas. Faltan: %v, invalidas: %v\n", verr.Missing, verr.Invalid)
		return
	}
	fmt.Printf("Error: %v\n", err)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	text, _ := reader.ReadString('\n')
	return strings.TrimSpace(text)
}
