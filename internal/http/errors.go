package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coach-llm/internal/repository"
	"coach-llm/internal/service"
	"coach-llm/internal/templates"
)

// respondError traduce errores de servicio a status y mensaje del locale de la sesion.
func respondError(c *gin.Context, logger *zap.Logger, err error, l *templates.Locale) {
	msgs := templates.Messages{}
	if l != nil {
		msgs = l.Messages
	}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": fallback(msgs.Validation, "invalid input"), "code": "validation"}
		if len(verr.Missing) > 0 {
			body["missing"] = verr.Missing
		}
		if len(verr.Invalid) > 0 {
			body["invalid"] = verr.Invalid
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, service.ErrSessionLimited):
		body := gin.H{"error": fallback(msgs.Limit, "session limit reached"), "code": "limited"}
		if l != nil {
			body["cta"] = l.CTA
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": fallback(msgs.InvalidState, "invalid session state"), "code": "invalid_state"})
	case errors.Is(err, service.ErrWrongVariant):
		c.JSON(http.StatusBadRequest, gin.H{"error": fallback(msgs.InvalidState, "operation not supported"), "code": "wrong_variant"})
	case errors.Is(err, service.ErrCompletion):
		logger.Warn("completion error", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback(msgs.Completion, "completion failed"), "code": "completion"})
	case errors.Is(err, service.ErrRetrieval):
		logger.Warn("retrieval error", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fallback(msgs.Retrieval, "retrieval failed"), "code": "retrieval"})
	case errors.Is(err, repository.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": fallback(msgs.NotFound, "session not found"), "code": "not_found"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": fallback(msgs.RateLimited, "too many requests"), "code": "rate_limited"})
	case errors.Is(err, service.ErrNotConfigured):
		logger.Error("service not configured", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable", "code": "unavailable"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}

func fallback(msg, def string) string {
	if msg != "" {
		return msg
	}
	return def
}
