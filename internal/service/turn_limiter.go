package service

import "coach-llm/internal/domain"

// TurnUnit define que se cuenta contra el tope de una sesion.
type TurnUnit string

const (
	// UnitMessages cuenta todos los mensajes salvo el de sistema.
	UnitMessages TurnUnit = "messages"
	// UnitRequests cuenta solicitudes completadas con exito.
	UnitRequests TurnUnit = "requests"
)

// TurnLimiter compara el conteo de una sesion con un tope constante.
type TurnLimiter struct {
	Unit    TurnUnit
	Ceiling int
}

// Count devuelve el conteo actual en la unidad del limiter.
func (l TurnLimiter) Count(s domain.Session) int {
	if l.Unit == UnitRequests {
		return s.Requests
	}
	if len(s.Messages) == 0 {
		return 0
	}
	return len(s.Messages) - 1
}

// Reached indica si la sesion alcanzo el tope.
func (l TurnLimiter) Reached(s domain.Session) bool {
	return l.Ceiling > 0 && l.Count(s) >= l.Ceiling
}

// Allows es true mientras quede margen; Limited siempre bloquea.
func (l TurnLimiter) Allows(s domain.Session) bool {
	return s.State != domain.SessionLimited && !l.Reached(s)
}

// Remaining nunca es negativo.
func (l TurnLimiter) Remaining(s domain.Session) int {
	if l.Ceiling <= 0 {
		return 0
	}
	r := l.Ceiling - l.Count(s)
	if r < 0 {
		return 0
	}
	return r
}
