package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"coach-llm/internal/service"
)

// RouterConfig agrupa handlers y middlewares del API.
type RouterConfig struct {
	ServiceName string
	CORSOrigins []string
	Tokens      *service.SessionTokenService
	Forms       *FormHandler
	Sessions    *SessionHandler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: tracing, logging, recovery, CORS y JSON content-type.
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "coach-llm"
	}
	r.Use(otelgin.Middleware(serviceName), zapLoggerMiddleware(logger), gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(jsonContentTypeMiddleware())

	r.GET("/healthz", cfg.Forms.Healthz)
	r.GET("/variants", cfg.Forms.ListVariants)
	r.GET("/variants/:variant/form", cfg.Forms.GetForm)

	r.POST("/sessions", cfg.Sessions.CreateSession)

	session := r.Group("/session")
	session.Use(SessionAuthMiddleware(cfg.Tokens))
	session.GET("", cfg.Sessions.GetSession)
	session.POST("/start", cfg.Sessions.StartSession)
	session.POST("/messages", cfg.Sessions.PostMessage)
	session.POST("/restart", cfg.Sessions.RestartSession)
	session.PUT("/locale", cfg.Sessions.SetLocale)
	session.POST("/matches", cfg.Sessions.PostMatches)
	session.POST("/feedback", cfg.Sessions.PostFeedback)

	return r
}

// zapLoggerMiddleware registra cada request; nunca el cuerpo.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
