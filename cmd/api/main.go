package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"coach-llm/internal/catalog"
	"coach-llm/internal/config"
	"coach-llm/internal/db"
	"coach-llm/internal/domain"
	"coach-llm/internal/email"
	apihttp "coach-llm/internal/http"
	"coach-llm/internal/llm"
	"coach-llm/internal/observability"
	"coach-llm/internal/repository"
	"coach-llm/internal/service"
	"coach-llm/internal/templates"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	shutdownTracing := observability.InitTracing(ctx, logger, observability.TracingConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.OtelServiceName,
		Environment: cfg.OtelEnvironment,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	tmpl, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		logger.Fatal("load templates", zap.Error(err))
	}
	programs, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("load catalog", zap.String("path", cfg.CatalogPath), zap.Error(err))
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.Options{
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.LLMTemperature,
		MaxTokens:      cfg.LLMMaxTokens,
		Timeout:        cfg.LLMTimeout,
	}, logger)

	var programRepo repository.ProgramRepository = repository.NewMemoryProgramRepository()
	var feedbackRepo repository.FeedbackRepository = repository.NewMemoryFeedbackRepository()
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		programRepo = repository.NewPgProgramRepository(pool)
		feedbackRepo = repository.NewPgFeedbackRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory program index")
	}

	indexer := catalog.NewIndexer(programRepo, llmClient, logger)
	if _, err := indexer.Sync(ctx, programs); err != nil {
		logger.Fatal("index catalog", zap.Error(err))
	}

	var sessionStore repository.SessionStore = repository.NewMemorySessionStore(cfg.SessionTTL)
	startLimiter := service.NewStartLimiter(cfg.StartLimitWindow, cfg.StartLimitMax)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, keeping in-memory sessions", zap.Error(err))
		} else {
			sessionStore = repository.NewRedisSessionStore(redisClient, cfg.SessionTTL)
			startLimiter = service.NewRedisStartLimiter(redisClient, cfg.StartLimitWindow, cfg.StartLimitMax)
		}
		cancel()
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	if cfg.SessionSecret == "" {
		logger.Warn("session secret not configured, tokens will not survive a restart")
	}
	tokens := service.NewSessionTokenService(cfg.SessionSecret, cfg.SessionTTL)

	composer := service.NewPromptComposer(tmpl, programTitles(programs))
	locks := service.NewSessionLocks()
	conversationSvc := service.NewConversationService(tmpl, composer, sessionStore, llmClient, logger,
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithSessionLocks(locks),
	)
	matchSvc := service.NewMatchService(tmpl, composer, sessionStore, programRepo, llmClient, llmClient, locks, logger)
	feedbackSvc := service.NewFeedbackService(sessionStore, feedbackRepo, emailSender, cfg.FeedbackNotifyTo, logger)

	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		ServiceName: cfg.OtelServiceName,
		CORSOrigins: cfg.CORSOrigins,
		Tokens:      tokens,
		Forms:       apihttp.NewFormHandler(logger, tmpl),
		Sessions:    apihttp.NewSessionHandler(logger, tmpl, conversationSvc, matchSvc, feedbackSvc, tokens, startLimiter),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.Int("programs", len(programs)))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func programTitles(programs []domain.StudyProgram) []string {
	seen := make(map[string]bool, len(programs))
	titles := make([]string, 0, len(programs))
	for _, p := range programs {
		if seen[p.Title] {
			continue
		}
		seen[p.Title] = true
		titles = append(titles, p.Title)
	}
	sort.Strings(titles)
	return titles
}
