package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coach-llm/internal/domain"
	"coach-llm/internal/email"
	"coach-llm/internal/repository"
)

// FeedbackService recoge la valoracion final de una sesion agotada.
type FeedbackService struct {
	store    repository.SessionStore
	repo     repository.FeedbackRepository
	sender   email.Sender
	notifyTo string
	logger   *zap.Logger
	now      func() time.Time
}

// NewFeedbackService acepta sender nil o notifyTo vacio: el aviso por correo queda desactivado.
func NewFeedbackService(store repository.SessionStore, repo repository.FeedbackRepository, sender email.Sender, notifyTo string, logger *zap.Logger) *FeedbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackService{
		store:    store,
		repo:     repo,
		sender:   sender,
		notifyTo: strings.TrimSpace(notifyTo),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit guarda la valoracion; solo se acepta con la sesion en Limited.
func (s *FeedbackService) Submit(ctx context.Context, sessionID, rating, comment string) (domain.Feedback, error) {
	if s == nil || s.store == nil || s.repo == nil {
		return domain.Feedback{}, ErrNotConfigured
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return domain.Feedback{}, err
	}
	if session.State != domain.SessionLimited {
		return domain.Feedback{}, fmt.Errorf("%w: feedback requires a finished session", ErrInvalidState)
	}

	rating = strings.ToLower(strings.TrimSpace(rating))
	if rating != domain.FeedbackUp && rating != domain.FeedbackDown {
		return domain.Feedback{}, &ValidationError{Invalid: []string{"rating"}}
	}

	fb := domain.Feedback{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Variant:   session.Variant,
		Locale:    session.Locale,
		Rating:    rating,
		Comment:   sanitizeFreeText(comment),
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return domain.Feedback{}, fmt.Errorf("save feedback: %w", err)
	}
	s.logger.Info("feedback received", zap.String("session_id", session.ID), zap.String("rating", rating))

	if s.sender != nil && s.notifyTo != "" {
		if err := s.sender.SendFeedback(ctx, s.notifyTo, fb); err != nil {
			s.logger.Warn("feedback email failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return fb, nil
}
