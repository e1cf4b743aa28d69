package service

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"coach-llm/internal/domain"
)

func TestNormalizeTurn_TrimsAndCaps(t *testing.T) {
	got, err := normalizeTurn("  hola  ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "hola" {
		t.Fatalf("expected trimmed content, got %q", got)
	}

	long := strings.Repeat("ä", maxTurnRunes+50)
	got, err = normalizeTurn(long)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if utf8.RuneCountInString(got) != maxTurnRunes {
		t.Fatalf("expected %d runes, got %d", maxTurnRunes, utf8.RuneCountInString(got))
	}
}

func TestNormalizeTurn_RejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t", "\xff\xfe"} {
		_, err := normalizeTurn(in)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("input %q: expected ErrValidation, got %v", in, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || len(verr.Missing) != 1 || verr.Missing[0] != "content" {
			t.Fatalf("input %q: expected missing content, got %v", in, err)
		}
	}
}

func TestToLLMMessages_KeepsOrder(t *testing.T) {
	now := time.Now()
	msgs := []domain.Message{
		newMessage(domain.RoleSystem, "sys", now),
		newMessage(domain.RoleAssistant, "hola", now),
		newMessage(domain.RoleUser, "pregunta", now),
	}
	out := toLLMMessages(msgs)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	for i := range msgs {
		if out[i].Role != msgs[i].Role || out[i].Content != msgs[i].Content {
			t.Fatalf("message %d mismatch: %+v vs %+v", i, out[i], msgs[i])
		}
	}
}
