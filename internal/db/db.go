package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"coach-llm/internal/config"
)

// EmbeddingDimensions coincide con text-embedding-3-small.
const EmbeddingDimensions = 1536

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Configuración razonable para ambientes iniciales.
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS study_programs (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		degree TEXT NOT NULL,
		study_form TEXT NOT NULL DEFAULT '',
		locations TEXT[] NOT NULL DEFAULT '{}',
		language TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		fee TEXT NOT NULL DEFAULT '',
		deadline TEXT NOT NULL DEFAULT '',
		semester_abroad TEXT NOT NULL DEFAULT '',
		accreditation TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, EmbeddingDimensions),
	`CREATE INDEX IF NOT EXISTS study_programs_locations_idx ON study_programs USING GIN (locations)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL,
		variant TEXT NOT NULL,
		locale TEXT NOT NULL,
		rating TEXT NOT NULL CHECK (rating IN ('up', 'down')),
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema crea extension, tablas e indices si no existen.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
