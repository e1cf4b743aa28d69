package email

import (
	"context"
	"errors"

	"coach-llm/internal/domain"
)

// Sender define la interfaz para avisos de feedback por correo.
type Sender interface {
	SendFeedback(ctx context.Context, toEmail string, fb domain.Feedback) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendFeedback(_ context.Context, _ string, _ domain.Feedback) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
