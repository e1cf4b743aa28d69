package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coach-llm/internal/domain"
	"coach-llm/internal/service"
	"coach-llm/internal/templates"
)

// SessionHandler mantiene dependencias para los endpoints de sesion.
type SessionHandler struct {
	logger   *zap.Logger
	catalog  *templates.Catalog
	conv     *service.ConversationService
	match    *service.MatchService
	feedback *service.FeedbackService
	tokens   *service.SessionTokenService
	limiter  service.StartLimiter
}

// NewSessionHandler crea el handler; limiter nil deja pasar todas las altas.
func NewSessionHandler(
	logger *zap.Logger,
	catalog *templates.Catalog,
	conv *service.ConversationService,
	match *service.MatchService,
	feedback *service.FeedbackService,
	tokens *service.SessionTokenService,
	limiter service.StartLimiter,
) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		catalog:  catalog,
		conv:     conv,
		match:    match,
		feedback: feedback,
		tokens:   tokens,
		limiter:  limiter,
	}
}

// locale devuelve los textos de la sesion; cae al locale por defecto de la variante.
func (h *SessionHandler) locale(variant, code string) *templates.Locale {
	v, err := h.catalog.Variant(variant)
	if err != nil {
		return nil
	}
	if l, err := v.Locale(code); err == nil {
		return l
	}
	l, _ := v.Locale("")
	return l
}

func (h *SessionHandler) fail(c *gin.Context, claims service.SessionClaims, session domain.Session, err error) {
	respondError(c, h.logger, err, h.locale(claims.Variant, session.Locale))
}

func (h *SessionHandler) writeView(c *gin.Context, status int, session domain.Session, extra gin.H) {
	view, err := h.conv.View(session)
	if err != nil {
		respondError(c, h.logger, err, nil)
		return
	}
	body := gin.H{"session": view}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// CreateSession maneja POST /sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req struct {
		Variant string `json:"variant" binding:"required"`
		Locale  string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(c.Request.Context(), req.Variant, c.ClientIP()) {
		h.logger.Warn("session start rate limited", zap.String("variant", req.Variant), zap.String("client_ip", c.ClientIP()))
		respondError(c, h.logger, service.ErrRateLimited, h.locale(req.Variant, req.Locale))
		return
	}

	session, err := h.conv.Create(c.Request.Context(), req.Variant, req.Locale)
	if err != nil {
		respondError(c, h.logger, err, h.locale(req.Variant, req.Locale))
		return
	}
	token, err := h.tokens.Issue(session.ID, session.Variant)
	if err != nil {
		h.logger.Error("issue session token failed", zap.String("session_id", session.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session", "code": "internal"})
		return
	}
	h.writeView(c, http.StatusCreated, session, gin.H{"token": token})
}

// GetSession maneja GET /session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	session, err := h.conv.Get(c.Request.Context(), claims.SessionID)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	h.writeView(c, http.StatusOK, session, nil)
}

// StartSession maneja POST /session/start.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	var req struct {
		Goal    string           `json:"goal"`
		Answers domain.AnswerSet `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid start request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	session, err := h.conv.Start(c.Request.Context(), claims.SessionID, req.Goal, req.Answers)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	h.writeView(c, http.StatusOK, session, nil)
}

// PostMessage maneja POST /session/messages.
func (h *SessionHandler) PostMessage(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	session, reply, err := h.conv.Send(c.Request.Context(), claims.SessionID, req.Content)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	h.writeView(c, http.StatusCreated, session, gin.H{"message": reply})
}

// RestartSession maneja POST /session/restart y entrega un token nuevo.
func (h *SessionHandler) RestartSession(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	session, err := h.conv.Restart(c.Request.Context(), claims.SessionID)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	token, err := h.tokens.Issue(session.ID, session.Variant)
	if err != nil {
		h.logger.Error("issue session token failed", zap.String("session_id", session.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not restart session", "code": "internal"})
		return
	}
	h.writeView(c, http.StatusOK, session, gin.H{"token": token})
}

// SetLocale maneja PUT /session/locale.
func (h *SessionHandler) SetLocale(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	var req struct {
		Locale string `json:"locale" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	session, err := h.conv.SetLocale(c.Request.Context(), claims.SessionID, req.Locale)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	h.writeView(c, http.StatusOK, session, nil)
}

// PostMatches maneja POST /session/matches.
func (h *SessionHandler) PostMatches(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	var req struct {
		Answers domain.AnswerSet `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid match request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	session, matches, err := h.match.Match(c.Request.Context(), claims.SessionID, req.Answers)
	if err != nil {
		h.fail(c, claims, session, err)
		return
	}
	extra := gin.H{"matches": matches}
	if len(matches) == 0 {
		if l := h.locale(claims.Variant, session.Locale); l != nil {
			extra["notice"] = l.Messages.NoMatches
		}
	}
	h.writeView(c, http.StatusOK, session, extra)
}

// PostFeedback maneja POST /session/feedback.
func (h *SessionHandler) PostFeedback(c *gin.Context) {
	claims, _ := GetSessionClaims(c)
	var req struct {
		Rating  string `json:"rating" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "bad_request"})
		return
	}

	fb, err := h.feedback.Submit(c.Request.Context(), claims.SessionID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, h.logger, err, h.locale(claims.Variant, ""))
		return
	}
	msg := ""
	if l := h.locale(claims.Variant, fb.Locale); l != nil {
		msg = l.Messages.FeedbackThanks
	}
	c.JSON(http.StatusCreated, gin.H{"feedback_id": fb.ID, "message": msg})
}
