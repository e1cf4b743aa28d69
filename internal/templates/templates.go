package templates

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesFS embed.FS

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrUnknownLocale  = errors.New("unknown locale")
	ErrUnknownGoal    = errors.New("unknown goal")
)

// Kind distingue variantes conversacionales de variantes de matching.
type Kind string

const (
	KindChat  Kind = "chat"
	KindMatch Kind = "match"
)

// QuestionKind define como se responde una pregunta del formulario.
type QuestionKind string

const (
	QuestionText   QuestionKind = "text"
	QuestionSingle QuestionKind = "single"
	QuestionMulti  QuestionKind = "multi"
)

// Filter marca preguntas cuyo valor filtra el catalogo de programas.
type Filter string

const (
	FilterNone      Filter = ""
	FilterLanguage  Filter = "language"
	FilterStudyForm Filter = "study_form"
	FilterLocation  Filter = "location"
)

// Option es un valor permitido. En YAML puede escribirse como string simple.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Value = node.Value
		o.Label = node.Value
		return nil
	}
	type plain Option
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*o = Option(p)
	if o.Label == "" {
		o.Label = o.Value
	}
	return nil
}

type Question struct {
	Key          string       `yaml:"key" json:"key"`
	Kind         QuestionKind `yaml:"kind" json:"kind"`
	Label        string       `yaml:"label" json:"label"`
	Hint         string       `yaml:"hint" json:"hint,omitempty"`
	ProfileLabel string       `yaml:"profile_label" json:"-"`
	Required     bool         `yaml:"required" json:"required"`
	Options      []Option     `yaml:"options" json:"options,omitempty"`
	Filter       Filter       `yaml:"filter" json:"filter,omitempty"`
}

// IsChoice indica si la respuesta debe pertenecer a Options.
func (q Question) IsChoice() bool {
	return q.Kind == QuestionSingle || q.Kind == QuestionMulti
}

// Option busca una opcion por valor.
func (q Question) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

type Goal struct {
	Key       string     `yaml:"key" json:"key"`
	Label     string     `yaml:"label" json:"label"`
	Intro     string     `yaml:"intro" json:"intro,omitempty"`
	Summary   string     `yaml:"summary" json:"-"`
	Questions []Question `yaml:"questions" json:"questions"`
}

type CTA struct {
	Title     string `yaml:"title" json:"title"`
	Body      string `yaml:"body" json:"body"`
	LinkLabel string `yaml:"link_label" json:"link_label"`
	LinkURL   string `yaml:"link_url" json:"link_url"`
}

// Messages son los textos de interfaz y de error de un locale.
type Messages struct {
	Thinking       string `yaml:"thinking" json:"thinking"`
	Remaining      string `yaml:"remaining" json:"remaining"`
	Limit          string `yaml:"limit" json:"limit"`
	Validation     string `yaml:"validation" json:"validation"`
	InvalidState   string `yaml:"invalid_state" json:"invalid_state"`
	Completion     string `yaml:"completion" json:"completion"`
	Retrieval      string `yaml:"retrieval" json:"retrieval"`
	NotFound       string `yaml:"not_found" json:"not_found"`
	RateLimited    string `yaml:"rate_limited" json:"rate_limited"`
	NoMatches      string `yaml:"no_matches" json:"no_matches"`
	FeedbackThanks string `yaml:"feedback_thanks" json:"feedback_thanks"`
}

// Locale agrupa todo lo que una variante necesita en un idioma.
type Locale struct {
	Code       string   `yaml:"-" json:"code"`
	Title      string   `yaml:"title" json:"title"`
	Welcome    string   `yaml:"welcome" json:"welcome"`
	GoalPrompt string   `yaml:"goal_prompt" json:"goal_prompt,omitempty"`
	Goals      []Goal   `yaml:"goals" json:"goals"`
	Messages   Messages `yaml:"messages" json:"messages"`
	CTA        CTA      `yaml:"cta" json:"cta"`

	BasePrompt string `yaml:"base_prompt" json:"-"`
	DataNotice string `yaml:"data_notice" json:"-"`
	SeedPrompt string `yaml:"seed_prompt" json:"-"`
	Greeting   string `yaml:"greeting" json:"-"`

	// FollowUps se envian por ronda; la ultima se repite en las rondas siguientes.
	FollowUps []string `yaml:"follow_ups" json:"-"`

	QueryPrefix       string `yaml:"query_prefix" json:"-"`
	QuerySuffix       string `yaml:"query_suffix" json:"-"`
	QueryFallback     string `yaml:"query_fallback" json:"-"`
	ExplanationPrompt string `yaml:"explanation_prompt" json:"-"`
}

// FollowUp devuelve la instruccion de la ronda (0 = primera respuesta del usuario).
func (l *Locale) FollowUp(round int) string {
	if len(l.FollowUps) == 0 {
		return ""
	}
	if round < 0 {
		round = 0
	}
	if round >= len(l.FollowUps) {
		round = len(l.FollowUps) - 1
	}
	return l.FollowUps[round]
}

// Goal devuelve el objetivo por clave.
func (l *Locale) Goal(key string) (*Goal, error) {
	for i := range l.Goals {
		if l.Goals[i].Key == key {
			return &l.Goals[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGoal, key)
}

type Variant struct {
	Key           string             `yaml:"key" json:"key"`
	Kind          Kind               `yaml:"kind" json:"kind"`
	MaxMessages   int                `yaml:"max_messages" json:"max_messages,omitempty"`
	MaxRequests   int                `yaml:"max_requests" json:"max_requests,omitempty"`
	DefaultLocale string             `yaml:"default_locale" json:"default_locale"`
	Locales       map[string]*Locale `yaml:"locales" json:"-"`
}

// Locale devuelve el locale pedido; vacio significa el locale por defecto.
func (v *Variant) Locale(code string) (*Locale, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = v.DefaultLocale
	}
	l, ok := v.Locales[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocale, code)
	}
	return l, nil
}

// LocaleCodes lista los locales disponibles ordenados.
func (v *Variant) LocaleCodes() []string {
	out := make([]string, 0, len(v.Locales))
	for code := range v.Locales {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Catalog es el conjunto de variantes cargado al arranque. Solo lectura.
type Catalog struct {
	Variants []*Variant `yaml:"variants"`
	byKey    map[string]*Variant
}

// Variant busca una variante por clave.
func (c *Catalog) Variant(key string) (*Variant, error) {
	v, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, key)
	}
	return v, nil
}

// Load lee el catalogo desde path, o el embebido si path esta vacio.
func Load(path string) (*Catalog, error) {
	var (
		data []byte
		err  error
	)
	if p := strings.TrimSpace(path); p != "" {
		data, err = os.ReadFile(p)
	} else {
		data, err = templatesFS.ReadFile("templates.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	return Parse(data)
}

// Parse decodifica y valida un catalogo YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c.byKey = make(map[string]*Variant, len(c.Variants))
	for _, v := range c.Variants {
		if v == nil {
			continue
		}
		for code, l := range v.Locales {
			if l != nil {
				l.Code = code
			}
		}
		c.byKey[v.Key] = v
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate comprueba la coherencia estructural del catalogo.
func (c *Catalog) Validate() error {
	if len(c.Variants) == 0 {
		return errors.New("templates: no variants defined")
	}
	seen := make(map[string]bool, len(c.Variants))
	for i, v := range c.Variants {
		if v == nil || strings.TrimSpace(v.Key) == "" {
			return fmt.Errorf("templates: variant %d has no key", i)
		}
		if seen[v.Key] {
			return fmt.Errorf("templates: duplicate variant %q", v.Key)
		}
		seen[v.Key] = true

		switch v.Kind {
		case KindChat:
			if v.MaxMessages <= 0 {
				return fmt.Errorf("templates: variant %q needs max_messages", v.Key)
			}
		case KindMatch:
			if v.MaxRequests <= 0 {
				return fmt.Errorf("templates: variant %q needs max_requests", v.Key)
			}
		default:
			return fmt.Errorf("templates: variant %q has unknown kind %q", v.Key, v.Kind)
		}
		if len(v.Locales) == 0 {
			return fmt.Errorf("templates: variant %q has no locales", v.Key)
		}
		if _, ok := v.Locales[v.DefaultLocale]; !ok {
			return fmt.Errorf("templates: variant %q default locale %q missing", v.Key, v.DefaultLocale)
		}
		for code, l := range v.Locales {
			if err := validateLocale(v, code, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateLocale(v *Variant, code string, l *Locale) error {
	where := fmt.Sprintf("templates: %s/%s", v.Key, code)
	if l == nil {
		return fmt.Errorf("%s: empty locale", where)
	}
	switch v.Kind {
	case KindChat:
		if strings.TrimSpace(l.BasePrompt) == "" {
			return fmt.Errorf("%s: base_prompt required", where)
		}
		if strings.TrimSpace(l.SeedPrompt) == "" && strings.TrimSpace(l.Greeting) == "" {
			return fmt.Errorf("%s: seed_prompt or greeting required", where)
		}
	case KindMatch:
		if strings.TrimSpace(l.ExplanationPrompt) == "" {
			return fmt.Errorf("%s: explanation_prompt required", where)
		}
	}
	if len(l.Goals) == 0 {
		return fmt.Errorf("%s: at least one goal required", where)
	}
	for _, g := range l.Goals {
		if g.Key == "" {
			return fmt.Errorf("%s: goal without key", where)
		}
		if len(g.Questions) == 0 {
			return fmt.Errorf("%s: goal %q has no questions", where, g.Key)
		}
		keys := make(map[string]bool, len(g.Questions))
		for _, q := range g.Questions {
			if q.Key == "" {
				return fmt.Errorf("%s/%s: question without key", where, g.Key)
			}
			if keys[q.Key] {
				return fmt.Errorf("%s/%s: duplicate question %q", where, g.Key, q.Key)
			}
			keys[q.Key] = true
			switch q.Kind {
			case QuestionText:
			case QuestionSingle, QuestionMulti:
				if len(q.Options) == 0 {
					return fmt.Errorf("%s/%s: question %q has no options", where, g.Key, q.Key)
				}
			default:
				return fmt.Errorf("%s/%s: question %q has unknown kind %q", where, g.Key, q.Key, q.Kind)
			}
		}
	}
	return nil
}
