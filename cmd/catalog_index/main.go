package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"coach-llm/internal/catalog"
	"coach-llm/internal/config"
	"coach-llm/internal/db"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
)

// catalog_index embebe el CSV de programas en Postgres sin levantar el API.
func main() {
	path := flag.String("file", "", "ruta del CSV de programas (por defecto CATALOG_PATH)")
	flag.Parse()

	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL es obligatorio para indexar el catalogo")
		os.Exit(2)
	}
	if *path == "" {
		*path = cfg.CatalogPath
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	programs, err := catalog.LoadFile(*path)
	if err != nil {
		logger.Fatal("load catalog", zap.String("path", *path), zap.Error(err))
	}

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

	embedder := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.Options{
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout,
	}, logger)

	res, err := catalog.NewIndexer(repository.NewPgProgramRepository(pool), embedder, logger).Sync(ctx, programs)
	if err != nil {
		logger.Fatal("index catalog", zap.Error(err))
	}
	logger.Info("catalog indexed",
		zap.Int("programs", len(programs)),
		zap.Int("embedded", res.Embedded),
		zap.Int("skipped", res.Skipped),
		zap.Int("removed", res.Removed),
	)
}
