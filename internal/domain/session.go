package domain

import "time"

// SessionState describe en que punto del flujo esta una sesion.
type SessionState string

const (
	SessionUnstarted SessionState = "unstarted"
	SessionActive    SessionState = "active"
	SessionLimited   SessionState = "limited"
)

// Session es el contexto explicito de una conversacion; nunca se comparte entre usuarios.
type Session struct {
	ID           string         `json:"id"`
	Variant      string         `json:"variant"`
	Locale       string         `json:"locale"`
	// Locale con el que se compuso el prompt; el cambio de idioma solo afecta a la interfaz.
	PromptLocale string         `json:"prompt_locale,omitempty"`
	Goal         string         `json:"goal,omitempty"`
	State        SessionState   `json:"state"`
	Answers      AnswerSet      `json:"answers,omitempty"`
	Messages     []Message      `json:"messages"`
	Requests     int            `json:"requests"` // Solicitudes completadas con exito; solo vuelve a 0 al reiniciar
	Matches      []ProgramMatch `json:"matches,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Transcript devuelve los mensajes visibles; el mensaje de sistema queda fuera.
func (s Session) Transcript() []Message {
	if len(s.Messages) == 0 {
		return []Message{}
	}
	start := 0
	if s.Messages[0].Role == RoleSystem {
		start = 1
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Clone devuelve una copia profunda; los stores nunca entregan la misma memoria dos veces.
func (s Session) Clone() Session {
	out := s
	out.Answers = s.Answers.Clone()
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	if s.Matches != nil {
		out.Matches = make([]ProgramMatch, len(s.Matches))
		for i, m := range s.Matches {
			m.Program.Locations = append([]string(nil), m.Program.Locations...)
			out.Matches[i] = m
		}
	}
	return out
}
