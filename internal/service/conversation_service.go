package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
	"coach-llm/internal/templates"
)

// AppendPolicy decide cuando entra el turno del usuario al historial.
type AppendPolicy int

const (
	// AppendAfterSuccess guarda usuario y asistente juntos cuando la llamada responde.
	AppendAfterSuccess AppendPolicy = iota
	// AppendOptimistic guarda el turno antes de llamar y lo revierte si falla.
	AppendOptimistic
)

// ConversationService orquesta el ciclo de vida de una sesion de chat.
type ConversationService struct {
	catalog  *templates.Catalog
	composer *PromptComposer
	store    repository.SessionStore
	llm      llm.ChatClient
	logger   *zap.Logger
	locks    *SessionLocks
	policy   AppendPolicy
	ttl      time.Duration
	now      func() time.Time
}

type ConversationOption func(*ConversationService)

func WithAppendPolicy(p AppendPolicy) ConversationOption {
	return func(s *ConversationService) { s.policy = p }
}

func WithSessionTTL(ttl time.Duration) ConversationOption {
	return func(s *ConversationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSessionLocks(l *SessionLocks) ConversationOption {
	return func(s *ConversationService) {
		if l != nil {
			s.locks = l
		}
	}
}

func NewConversationService(
	catalog *templates.Catalog,
	composer *PromptComposer,
	store repository.SessionStore,
	client llm.ChatClient,
	logger *zap.Logger,
	opts ...ConversationOption,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ConversationService{
		catalog:  catalog,
		composer: composer,
		store:    store,
		llm:      client,
		logger:   logger,
		locks:    NewSessionLocks(),
		policy:   AppendAfterSuccess,
		ttl:      24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionView es la proyeccion publica de una sesion.
type SessionView struct {
	ID         string                `json:"id"`
	Variant    string                `json:"variant"`
	Kind       templates.Kind        `json:"kind"`
	Locale     string                `json:"locale"`
	Goal       string                `json:"goal,omitempty"`
	State      domain.SessionState   `json:"state"`
	Transcript []domain.Message      `json:"transcript"`
	Matches    []domain.ProgramMatch `json:"matches,omitempty"`
	Unit       TurnUnit              `json:"unit"`
	Count      int                   `json:"count"`
	Ceiling    int                   `json:"ceiling"`
	Remaining  int                   `json:"remaining"`
	CTA        *templates.CTA        `json:"cta,omitempty"`
	ExpiresAt  time.Time             `json:"expires_at"`
}

// Create abre una sesion nueva en estado Unstarted.
func (s *ConversationService) Create(ctx context.Context, variant, locale string) (domain.Session, error) {
	if s == nil || s.store == nil || s.catalog == nil {
		return domain.Session{}, ErrNotConfigured
	}
	v, err := s.catalog.Variant(variant)
	if err != nil {
		return domain.Session{}, validationReason(err.Error())
	}
	l, err := v.Locale(locale)
	if err != nil {
		return domain.Session{}, validationReason(err.Error())
	}

	now := s.now()
	session := domain.Session{
		ID:        uuid.NewString(),
		Variant:   v.Key,
		Locale:    l.Code,
		State:     domain.SessionUnstarted,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.String("variant", v.Key), zap.String("locale", l.Code))
	return session, nil
}

// Get devuelve la sesion tal como esta guardada.
func (s *ConversationService) Get(ctx context.Context, id string) (domain.Session, error) {
	if s == nil || s.store == nil {
		return domain.Session{}, ErrNotConfigured
	}
	return s.store.Get(ctx, id)
}

// Limiter devuelve el limitador de turnos de la variante.
func (s *ConversationService) Limiter(variant string) (TurnLimiter, error) {
	v, err := s.catalog.Variant(variant)
	if err != nil {
		return TurnLimiter{}, err
	}
	return limiterFor(v), nil
}

func limiterFor(v *templates.Variant) TurnLimiter {
	if v.Kind == templates.KindMatch {
		return TurnLimiter{Unit: UnitRequests, Ceiling: v.MaxRequests}
	}
	return TurnLimiter{Unit: UnitMessages, Ceiling: v.MaxMessages}
}

// View proyecta la sesion para la API: transcript sin sistema, conteos y CTA al limite.
func (s *ConversationService) View(session domain.Session) (SessionView, error) {
	v, err := s.catalog.Variant(session.Variant)
	if err != nil {
		return SessionView{}, err
	}
	lim := limiterFor(v)
	view := SessionView{
		ID:         session.ID,
		Variant:    session.Variant,
		Kind:       v.Kind,
		Locale:     session.Locale,
		Goal:       session.Goal,
		State:      session.State,
		Transcript: session.Transcript(),
		Matches:    session.Matches,
		Unit:       lim.Unit,
		Count:      lim.Count(session),
		Ceiling:    lim.Ceiling,
		Remaining:  lim.Remaining(session),
		ExpiresAt:  session.ExpiresAt,
	}
	if session.State == domain.SessionLimited {
		if l, err := v.Locale(session.Locale); err == nil {
			cta := l.CTA
			view.CTA = &cta
		}
	}
	return view, nil
}

// Start compone el prompt y obtiene el saludo del asistente. Solo desde Unstarted.
func (s *ConversationService) Start(ctx context.Context, id, goal string, answers domain.AnswerSet) (domain.Session, error) {
	if s == nil || s.store == nil || s.composer == nil {
		return domain.Session{}, ErrNotConfigured
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.State != domain.SessionUnstarted {
		return session, fmt.Errorf("%w: start from %s", ErrInvalidState, session.State)
	}
	v, err := s.catalog.Variant(session.Variant)
	if err != nil {
		return session, err
	}
	if v.Kind != templates.KindChat {
		return session, fmt.Errorf("%w: %s", ErrWrongVariant, v.Key)
	}

	comp, err := s.composer.Compose(session.Variant, session.Locale, goal, answers)
	if err != nil {
		return session, err
	}
	l, err := v.Locale(session.Locale)
	if err != nil {
		return session, err
	}

	now := s.now()
	system := newMessage(domain.RoleSystem, comp.System, now)
	var greeting string
	if l.Greeting != "" {
		greeting = l.Greeting
	} else {
		if s.llm == nil {
			return session, ErrNotConfigured
		}
		greeting, err = s.llm.Complete(ctx, []llm.Message{
			{Role: domain.RoleSystem, Content: comp.System},
			{Role: domain.RoleUser, Content: comp.Seed},
		})
		if err != nil {
			s.logger.Warn("start completion failed", zap.String("session_id", id), zap.Error(err))
			return session, fmt.Errorf("%w: %w", ErrCompletion, err)
		}
		session.Requests++
	}

	session.Messages = []domain.Message{system, newMessage(domain.RoleAssistant, greeting, s.now())}
	session.Goal = comp.Goal
	session.Answers = comp.Answers
	session.PromptLocale = session.Locale
	session.State = domain.SessionActive
	if limiterFor(v).Reached(session) {
		session.State = domain.SessionLimited
	}
	session.UpdatedAt = s.now()

	if err := s.store.Save(ctx, session); err != nil {
		return session, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session started", zap.String("session_id", id), zap.String("goal", comp.Goal))
	return session, nil
}

// Send agrega un turno del usuario y la respuesta del asistente.
func (s *ConversationService) Send(ctx context.Context, id, content string) (domain.Session, domain.Message, error) {
	if s == nil || s.store == nil || s.llm == nil {
		return domain.Session{}, domain.Message{}, ErrNotConfigured
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, domain.Message{}, err
	}
	v, err := s.catalog.Variant(session.Variant)
	if err != nil {
		return session, domain.Message{}, err
	}
	if v.Kind != templates.KindChat {
		return session, domain.Message{}, fmt.Errorf("%w: %s", ErrWrongVariant, v.Key)
	}
	if session.State == domain.SessionUnstarted {
		return session, domain.Message{}, fmt.Errorf("%w: send before start", ErrInvalidState)
	}

	lim := limiterFor(v)
	if !lim.Allows(session) {
		if session.State != domain.SessionLimited {
			session.State = domain.SessionLimited
			session.UpdatedAt = s.now()
			if err := s.store.Save(ctx, session); err != nil {
				return session, domain.Message{}, fmt.Errorf("save session: %w", err)
			}
		}
		return session, domain.Message{}, ErrSessionLimited
	}

	content, err = normalizeTurn(content)
	if err != nil {
		return session, domain.Message{}, err
	}
	userMsg := newMessage(domain.RoleUser, content, s.now())

	base := len(session.Messages)
	if s.policy == AppendOptimistic {
		session.Messages = append(session.Messages, userMsg)
		if err := s.store.Save(ctx, session); err != nil {
			return session, domain.Message{}, fmt.Errorf("save session: %w", err)
		}
	}

	request := toLLMMessages(session.Messages[:base])
	request = append(request, llm.Message{Role: domain.RoleUser, Content: content})
	if fu := s.followUp(v, session, base); fu != "" {
		request = append(request, llm.Message{Role: domain.RoleUser, Content: fu})
	}

	reply, err := s.llm.Complete(ctx, request)
	if err != nil {
		s.logger.Warn("turn completion failed", zap.String("session_id", id), zap.Error(err))
		if s.policy == AppendOptimistic {
			session.Messages = session.Messages[:base]
			if saveErr := s.store.Save(context.WithoutCancel(ctx), session); saveErr != nil {
				s.logger.Error("rollback failed", zap.String("session_id", id), zap.Error(saveErr))
			}
		}
		return session, domain.Message{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}

	assistant := newMessage(domain.RoleAssistant, reply, s.now())
	session.Messages = append(session.Messages[:base], userMsg, assistant)
	session.Requests++
	if lim.Reached(session) {
		session.State = domain.SessionLimited
	}
	session.UpdatedAt = s.now()

	if err := s.store.Save(ctx, session); err != nil {
		return session, domain.Message{}, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("turn completed",
		zap.String("session_id", id),
		zap.Int("count", lim.Count(session)),
		zap.String("state", string(session.State)),
	)
	return session, assistant, nil
}

// followUp es la instruccion efimera que algunas variantes agregan a cada turno;
// la ronda es el numero de turnos del usuario ya guardados.
func (s *ConversationService) followUp(v *templates.Variant, session domain.Session, base int) string {
	code := session.PromptLocale
	if code == "" {
		code = session.Locale
	}
	l, err := v.Locale(code)
	if err != nil {
		return ""
	}
	round := 0
	for _, m := range session.Messages[:base] {
		if m.Role == domain.RoleUser {
			round++
		}
	}
	return l.FollowUp(round)
}

// Restart vuelve a Unstarted con historial vacio y contador en cero.
func (s *ConversationService) Restart(ctx context.Context, id string) (domain.Session, error) {
	if s == nil || s.store == nil {
		return domain.Session{}, ErrNotConfigured
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	now := s.now()
	session.State = domain.SessionUnstarted
	session.Messages = []domain.Message{}
	session.Requests = 0
	session.Goal = ""
	session.Answers = nil
	session.Matches = nil
	session.PromptLocale = ""
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.ttl)

	if err := s.store.Save(ctx, session); err != nil {
		return session, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session restarted", zap.String("session_id", id))
	return session, nil
}

// SetLocale cambia el idioma de la interfaz; el prompt ya compuesto no cambia.
func (s *ConversationService) SetLocale(ctx context.Context, id, locale string) (domain.Session, error) {
	if s == nil || s.store == nil {
		return domain.Session{}, ErrNotConfigured
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	v, err := s.catalog.Variant(session.Variant)
	if err != nil {
		return session, err
	}
	l, err := v.Locale(locale)
	if err != nil {
		return session, validationReason(err.Error())
	}
	session.Locale = l.Code
	session.UpdatedAt = s.now()
	if err := s.store.Save(ctx, session); err != nil {
		return session, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}
