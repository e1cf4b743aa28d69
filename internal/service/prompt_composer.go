package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"coach-llm/internal/domain"
	"coach-llm/internal/templates"
)

const (
	maxFreeTextRunes = 500
	profileOpen      = "<<<PROFILE"
	profileClose     = "PROFILE>>>"
)

// PromptComposer arma el prompt de sistema y el mensaje semilla a partir del formulario.
type PromptComposer struct {
	catalog  *templates.Catalog
	programs []string
}

// Composition es el resultado de componer; no hay llamadas de red en este paso.
type Composition struct {
	System  string
	Seed    string
	Goal    string
	Answers domain.AnswerSet
}

// Profile es el formulario ya validado y saneado, listo para prompts y filtros.
type Profile struct {
	Variant   *templates.Variant
	Locale    *templates.Locale
	Goal      *templates.Goal
	Answers   domain.AnswerSet
	Lines     []string
	TextLines []string
	Filter    domain.ProgramFilter
}

// Block devuelve las lineas del perfil dentro de delimitadores de datos.
func (p *Profile) Block() string {
	var sb strings.Builder
	sb.WriteString(profileOpen)
	sb.WriteString("\n")
	for _, l := range p.Lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	sb.WriteString(profileClose)
	return sb.String()
}

func NewPromptComposer(catalog *templates.Catalog, programTitles []string) *PromptComposer {
	return &PromptComposer{
		catalog:  catalog,
		programs: append([]string(nil), programTitles...),
	}
}

// Compose valida las respuestas y construye system + seed para el objetivo elegido.
func (c *PromptComposer) Compose(variant, locale, goal string, answers domain.AnswerSet) (Composition, error) {
	profile, err := c.BuildProfile(variant, locale, goal, answers)
	if err != nil {
		return Composition{}, err
	}
	if profile.Variant.Kind != templates.KindChat {
		return Composition{}, fmt.Errorf("%w: %s is not a chat variant", ErrWrongVariant, variant)
	}

	l := profile.Locale
	block := profile.Block()
	r := strings.NewReplacer(
		"{goal}", profile.Goal.Label,
		"{profile}", block,
		"{programs}", c.programList(),
	)

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(r.Replace(l.BasePrompt)))
	sb.WriteString("\n\n")
	if s := strings.TrimSpace(profile.Goal.Summary); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	if n := strings.TrimSpace(l.DataNotice); n != "" {
		sb.WriteString(n)
		sb.WriteString("\n")
	}
	sb.WriteString(block)

	return Composition{
		System:  sb.String(),
		Seed:    strings.TrimSpace(r.Replace(l.SeedPrompt)),
		Goal:    profile.Goal.Key,
		Answers: profile.Answers,
	}, nil
}

// BuildProfile resuelve variante, locale y objetivo, y valida cada respuesta.
func (c *PromptComposer) BuildProfile(variant, locale, goal string, answers domain.AnswerSet) (*Profile, error) {
	if c == nil || c.catalog == nil {
		return nil, ErrNotConfigured
	}
	v, err := c.catalog.Variant(variant)
	if err != nil {
		return nil, validationReason(err.Error())
	}
	l, err := v.Locale(locale)
	if err != nil {
		return nil, validationReason(err.Error())
	}
	if goal == "" && len(l.Goals) == 1 {
		goal = l.Goals[0].Key
	}
	g, err := l.Goal(goal)
	if err != nil {
		return nil, validationReason(err.Error())
	}

	p := &Profile{Variant: v, Locale: l, Goal: g, Answers: domain.AnswerSet{}}
	verr := &ValidationError{}
	known := make(map[string]bool, len(g.Questions))

	for _, q := range g.Questions {
		known[q.Key] = true
		raw := answers[q.Key]

		if !q.IsChoice() {
			text := ""
			if len(raw) > 0 {
				text = sanitizeFreeText(strings.Join(raw, " "))
			}
			if text == "" {
				if q.Required {
					verr.Missing = append(verr.Missing, q.Key)
				}
				continue
			}
			p.Answers[q.Key] = domain.AnswerValue{text}
			line := fmt.Sprintf("%s: %s", profileLabel(q), text)
			p.Lines = append(p.Lines, line)
			p.TextLines = append(p.TextLines, line)
			continue
		}

		values, labels, ok := resolveChoices(q, raw)
		if !ok {
			verr.Invalid = append(verr.Invalid, q.Key)
			continue
		}
		if len(values) == 0 {
			if q.Required {
				verr.Missing = append(verr.Missing, q.Key)
			}
			continue
		}
		p.Answers[q.Key] = values
		switch q.Filter {
		case templates.FilterLanguage:
			p.Filter.Languages = append(p.Filter.Languages, values...)
		case templates.FilterStudyForm:
			p.Filter.StudyForms = append(p.Filter.StudyForms, values...)
		case templates.FilterLocation:
			p.Filter.Locations = append(p.Filter.Locations, values...)
		default:
			p.Lines = append(p.Lines, fmt.Sprintf("%s: %s", profileLabel(q), strings.Join(labels, ", ")))
		}
	}

	for key := range answers {
		if !known[key] {
			verr.Invalid = append(verr.Invalid, key)
		}
	}
	if !verr.empty() {
		return nil, verr.sorted()
	}
	return p, nil
}

func (c *PromptComposer) programList() string {
	if len(c.programs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, t := range c.programs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(t)
	}
	return sb.String()
}

// resolveChoices comprueba cada valor contra la lista de opciones; ok=false si alguno sobra.
func resolveChoices(q templates.Question, raw domain.AnswerValue) (domain.AnswerValue, []string, bool) {
	var values domain.AnswerValue
	var labels []string
	seen := make(map[string]bool, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		opt, ok := q.Option(v)
		if !ok {
			return nil, nil, false
		}
		seen[v] = true
		values = append(values, opt.Value)
		labels = append(labels, opt.Label)
	}
	if q.Kind == templates.QuestionSingle && len(values) > 1 {
		return nil, nil, false
	}
	return values, labels, true
}

func profileLabel(q templates.Question) string {
	if q.ProfileLabel != "" {
		return q.ProfileLabel
	}
	return q.Label
}

var markerReplacer = strings.NewReplacer("```", "", "<<<", "", ">>>", "")

// sanitizeFreeText deja el texto libre en una sola linea acotada, sin delimitadores.
func sanitizeFreeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == utf8.RuneError {
			return -1
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
	for {
		cleaned := markerReplacer.Replace(s)
		if cleaned == s {
			break
		}
		s = cleaned
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxFreeTextRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxFreeTextRunes]))
	}
	return s
}
