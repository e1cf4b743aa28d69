package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coach-llm/internal/templates"
)

// FormHandler expone el catalogo de variantes y sus formularios como JSON.
type FormHandler struct {
	logger  *zap.Logger
	catalog *templates.Catalog
}

func NewFormHandler(logger *zap.Logger, catalog *templates.Catalog) *FormHandler {
	return &FormHandler{logger: logger, catalog: catalog}
}

type variantSummary struct {
	Key           string         `json:"key"`
	Kind          templates.Kind `json:"kind"`
	Title         string         `json:"title"`
	DefaultLocale string         `json:"default_locale"`
	Locales       []string       `json:"locales"`
	MaxMessages   int            `json:"max_messages,omitempty"`
	MaxRequests   int            `json:"max_requests,omitempty"`
}

// Healthz maneja GET /healthz.
func (h *FormHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListVariants maneja GET /variants.
func (h *FormHandler) ListVariants(c *gin.Context) {
	out := make([]variantSummary, 0, len(h.catalog.Variants))
	for _, v := range h.catalog.Variants {
		title := ""
		if l, err := v.Locale(""); err == nil {
			title = l.Title
		}
		out = append(out, variantSummary{
			Key:           v.Key,
			Kind:          v.Kind,
			Title:         title,
			DefaultLocale: v.DefaultLocale,
			Locales:       v.LocaleCodes(),
			MaxMessages:   v.MaxMessages,
			MaxRequests:   v.MaxRequests,
		})
	}
	c.JSON(http.StatusOK, gin.H{"variants": out})
}

// GetForm maneja GET /variants/:variant/form?locale=.
func (h *FormHandler) GetForm(c *gin.Context) {
	v, err := h.catalog.Variant(c.Param("variant"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "variant not found", "code": "not_found"})
		return
	}
	l, err := v.Locale(c.Query("locale"))
	if err != nil {
		if errors.Is(err, templates.ErrUnknownLocale) {
			c.JSON(http.StatusNotFound, gin.H{"error": "locale not found", "code": "not_found"})
			return
		}
		h.logger.Error("form lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"variant": v.Key,
		"kind":    v.Kind,
		"locales": v.LocaleCodes(),
		"form":    l,
	})
}
