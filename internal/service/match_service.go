package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
	"coach-llm/internal/templates"
)

const (
	matchCandidates = 10
	matchResults    = 3
)

var tracer = otel.Tracer("coach-llm/service")

// MatchService recupera programas por similitud y explica cada resultado.
type MatchService struct {
	catalog  *templates.Catalog
	composer *PromptComposer
	store    repository.SessionStore
	programs repository.ProgramRepository
	embedder llm.Embedder
	llm      llm.ChatClient
	locks    *SessionLocks
	logger   *zap.Logger
	now      func() time.Time
}

func NewMatchService(
	catalog *templates.Catalog,
	composer *PromptComposer,
	store repository.SessionStore,
	programs repository.ProgramRepository,
	embedder llm.Embedder,
	client llm.ChatClient,
	locks *SessionLocks,
	logger *zap.Logger,
) *MatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewSessionLocks()
	}
	return &MatchService{
		catalog:  catalog,
		composer: composer,
		store:    store,
		programs: programs,
		embedder: embedder,
		llm:      client,
		locks:    locks,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// BuildQuery une los campos de texto con contenido; sin ninguno usa la consulta generica.
func BuildQuery(l *templates.Locale, textLines []string) string {
	if len(textLines) == 0 {
		return strings.TrimSpace(l.QueryFallback)
	}
	var sb strings.Builder
	if p := strings.TrimSpace(l.QueryPrefix); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Join(textLines, "\n"))
	if s := strings.TrimSpace(l.QuerySuffix); s != "" {
		sb.WriteString("\n\n")
		sb.WriteString(s)
	}
	return sb.String()
}

// SelectDiverse elige hasta n resultados con titulacion y titulo distintos;
// si no alcanza, completa con titulos aun no elegidos en orden de distancia.
func SelectDiverse(results []domain.ScoredProgram, n int) []domain.ScoredProgram {
	selected := make([]domain.ScoredProgram, 0, n)
	seenDegrees := make(map[string]bool)
	seenTitles := make(map[string]bool)

	for _, r := range results {
		if len(selected) == n {
			return selected
		}
		if seenDegrees[r.Program.Degree] || seenTitles[r.Program.Title] {
			continue
		}
		selected = append(selected, r)
		seenDegrees[r.Program.Degree] = true
		seenTitles[r.Program.Title] = true
	}
	for _, r := range results {
		if len(selected) == n {
			break
		}
		if seenTitles[r.Program.Title] {
			continue
		}
		selected = append(selected, r)
		seenTitles[r.Program.Title] = true
	}
	return selected
}

// Match ejecuta una solicitud de recomendacion sobre la sesion id.
// Cualquier fallo devuelve ErrRetrieval sin resultados parciales ni cambios de estado.
func (s *MatchService) Match(ctx context.Context, id string, answers domain.AnswerSet) (domain.Session, []domain.ProgramMatch, error) {
	if s == nil || s.store == nil || s.programs == nil || s.embedder == nil || s.llm == nil {
		return domain.Session{}, nil, ErrNotConfigured
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, nil, err
	}
	v, err := s.catalog.Variant(session.Variant)
	if err != nil {
		return session, nil, err
	}
	if v.Kind != templates.KindMatch {
		return session, nil, fmt.Errorf("%w: %s", ErrWrongVariant, v.Key)
	}

	lim := limiterFor(v)
	if !lim.Allows(session) {
		if session.State != domain.SessionLimited {
			session.State = domain.SessionLimited
			session.UpdatedAt = s.now()
			if err := s.store.Save(ctx, session); err != nil {
				return session, nil, fmt.Errorf("save session: %w", err)
			}
		}
		return session, nil, ErrSessionLimited
	}

	profile, err := s.composer.BuildProfile(session.Variant, session.Locale, "", answers)
	if err != nil {
		return session, nil, err
	}

	candidates, err := s.retrieve(ctx, id, profile)
	if err != nil {
		return session, nil, err
	}
	if len(candidates) == 0 {
		s.logger.Info("match without results", zap.String("session_id", id))
		return session, []domain.ProgramMatch{}, nil
	}

	picked := SelectDiverse(candidates, matchResults)
	matches, err := s.explain(ctx, profile, picked)
	if err != nil {
		s.logger.Warn("match explanation failed", zap.String("session_id", id), zap.Error(err))
		return session, nil, fmt.Errorf("%w: explain: %w", ErrRetrieval, err)
	}

	session.Matches = matches
	session.Answers = profile.Answers
	session.Goal = profile.Goal.Key
	session.Requests++
	session.State = domain.SessionActive
	if lim.Reached(session) {
		session.State = domain.SessionLimited
	}
	session.UpdatedAt = s.now()
	if err := s.store.Save(ctx, session); err != nil {
		return session, nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("match completed",
		zap.String("session_id", id),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
		zap.Int("requests", session.Requests),
	)
	return session, matches, nil
}

// retrieve embebe la consulta del perfil y busca candidatos con los filtros duros.
func (s *MatchService) retrieve(ctx context.Context, id string, profile *Profile) ([]domain.ScoredProgram, error) {
	ctx, span := tracer.Start(ctx, "match.retrieve", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Bool("filter.empty", profile.Filter.IsEmpty()),
	))
	defer span.End()

	query := BuildQuery(profile.Locale, profile.TextLines)
	vec, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		s.logger.Warn("match embedding failed", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}

	candidates, err := s.programs.Search(ctx, vec, profile.Filter, matchCandidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search")
		s.logger.Warn("match search failed", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: search: %w", ErrRetrieval, err)
	}
	span.SetAttributes(attribute.Int("match.candidates", len(candidates)))
	return candidates, nil
}

func (s *MatchService) explain(ctx context.Context, profile *Profile, picked []domain.ScoredProgram) ([]domain.ProgramMatch, error) {
	out := make([]domain.ProgramMatch, len(picked))
	block := profile.Block()

	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range picked {
		prompt := strings.NewReplacer(
			"{profile}", block,
			"{program}", programSummary(sp.Program),
		).Replace(profile.Locale.ExplanationPrompt)

		g.Go(func() error {
			text, err := s.llm.Generate(gctx, prompt)
			if err != nil {
				return err
			}
			text = cleanLLMText(text)
			if text == "" {
				return llm.ErrEmptyResponse
			}
			out[i] = domain.ProgramMatch{Program: sp.Program, Explanation: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func programSummary(p domain.StudyProgram) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", p.Title, p.Degree)
	if d := strings.TrimSpace(p.Description); d != "" {
		sb.WriteString("\n")
		sb.WriteString(d)
	}
	return sb.String()
}
