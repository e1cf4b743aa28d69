package service

import (
	"strings"
	"time"
	"unicode/utf8"

	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
)

const maxTurnRunes = 2000

// normalizeTurn limpia un turno del usuario antes de que entre al historial.
func normalizeTurn(content string) (string, error) {
	content = strings.TrimSpace(strings.ToValidUTF8(content, ""))
	if content == "" {
		return "", &ValidationError{Missing: []string{"content"}}
	}
	if utf8.RuneCountInString(content) > maxTurnRunes {
		content = string([]rune(content)[:maxTurnRunes])
	}
	return content, nil
}

func newMessage(role, content string, at time.Time) domain.Message {
	return domain.Message{Role: role, Content: content, CreatedAt: at}
}

// toLLMMessages traduce el historial al formato del cliente, en el mismo orden.
func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
