package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"coach-llm/internal/domain"
)

type FeedbackRepository interface {
	Create(ctx context.Context, fb domain.Feedback) error
}

type PgFeedbackRepository struct {
	pool *pgxpool.Pool
}

func NewPgFeedbackRepository(pool *pgxpool.Pool) *PgFeedbackRepository {
	return &PgFeedbackRepository{pool: pool}
}

func (r *PgFeedbackRepository) Create(ctx context.Context, fb domain.Feedback) error {
	const query = `
		INSERT INTO feedback (id, session_id, variant, locale, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		fb.ID,
		fb.SessionID,
		fb.Variant,
		fb.Locale,
		fb.Rating,
		fb.Comment,
		fb.CreatedAt,
	)
	return err
}

type MemoryFeedbackRepository struct {
	mu    sync.Mutex
	items []domain.Feedback
}

func NewMemoryFeedbackRepository() *MemoryFeedbackRepository {
	return &MemoryFeedbackRepository{}
}

func (r *MemoryFeedbackRepository) Create(_ context.Context, fb domain.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, fb)
	return nil
}

// List devuelve una copia de lo guardado.
func (r *MemoryFeedbackRepository) List() []domain.Feedback {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Feedback(nil), r.items...)
}
