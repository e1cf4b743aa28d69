package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"coach-llm/internal/domain"
)

// ProgramRepository es el indice de vectores del catalogo de programas.
type ProgramRepository interface {
	Upsert(ctx context.Context, program domain.StudyProgram, embedding []float32) error
	ContentHashes(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, embedding []float32, filter domain.ProgramFilter, k int) ([]domain.ScoredProgram, error)
	Titles(ctx context.Context) ([]string, error)
}

type PgProgramRepository struct {
	pool *pgxpool.Pool
}

func NewPgProgramRepository(pool *pgxpool.Pool) *PgProgramRepository {
	return &PgProgramRepository{pool: pool}
}

func (r *PgProgramRepository) Upsert(ctx context.Context, p domain.StudyProgram, embedding []float32) error {
	const query = `
		INSERT INTO study_programs (
			id, title, degree, study_form, locations, language, duration, fee, deadline, semester_abroad, accreditation, url, description, content_hash, embedding, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			degree = EXCLUDED.degree,
			study_form = EXCLUDED.study_form,
			locations = EXCLUDED.locations,
			language = EXCLUDED.language,
			duration = EXCLUDED.duration,
			fee = EXCLUDED.fee,
			deadline = EXCLUDED.deadline,
			semester_abroad = EXCLUDED.semester_abroad,
			accreditation = EXCLUDED.accreditation,
			url = EXCLUDED.url,
			description = EXCLUDED.description,
			content_hash = EXCLUDED.content_hash,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Degree,
		p.StudyForm,
		nonNilStrings(p.Locations),
		p.Language,
		p.Duration,
		p.Fee,
		p.Deadline,
		p.SemesterAbroad,
		p.Accreditation,
		p.URL,
		p.Description,
		p.ContentHash,
		pgvector.NewVector(embedding),
		updatedAt,
	)
	return err
}

func (r *PgProgramRepository) ContentHashes(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, content_hash FROM study_programs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// Delete elimina programas que ya no figuran en el catalogo.
func (r *PgProgramRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM study_programs WHERE id = ANY($1::uuid[])`, ids); err != nil {
		return fmt.Errorf("delete programs: %w", err)
	}
	return nil
}

func (r *PgProgramRepository) Titles(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT title FROM study_programs ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (r *PgProgramRepository) Search(ctx context.Context, embedding []float32, filter domain.ProgramFilter, k int) ([]domain.ScoredProgram, error) {
	if k <= 0 {
		k = 10
	}
	const query = `
		SELECT id, title, degree, study_form, locations, language, duration, fee, deadline, semester_abroad, accreditation, url, description, content_hash, updated_at,
			embedding <=> $1 AS distance
		FROM study_programs
		WHERE (cardinality($2::text[]) = 0 OR language = ANY($2))
		  AND (cardinality($3::text[]) = 0 OR study_form = ANY($3))
		  AND (cardinality($4::text[]) = 0 OR locations && $4)
		ORDER BY embedding <=> $1
		LIMIT $5
	`
	rows, err := r.pool.Query(ctx, query,
		pgvector.NewVector(embedding),
		nonNilStrings(filter.Languages),
		nonNilStrings(filter.StudyForms),
		nonNilStrings(filter.Locations),
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("search programs: %w", err)
	}
	defer rows.Close()

	return scanScoredPrograms(rows)
}

func scanScoredPrograms(rows pgxRows) ([]domain.ScoredProgram, error) {
	var out []domain.ScoredProgram
	for rows.Next() {
		var sp domain.ScoredProgram
		p := &sp.Program
		if err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Degree,
			&p.StudyForm,
			&p.Locations,
			&p.Language,
			&p.Duration,
			&p.Fee,
			&p.Deadline,
			&p.SemesterAbroad,
			&p.Accreditation,
			&p.URL,
			&p.Description,
			&p.ContentHash,
			&p.UpdatedAt,
			&sp.Distance,
		); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// pgxRows es la interfaz minima de filas pgx para poder testear el escaneo.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// MemoryProgramRepository resuelve la busqueda por fuerza bruta con distancia coseno.
type MemoryProgramRepository struct {
	mu      sync.RWMutex
	entries map[string]programEntry
}

type programEntry struct {
	program   domain.StudyProgram
	embedding []float32
}

func NewMemoryProgramRepository() *MemoryProgramRepository {
	return &MemoryProgramRepository{entries: make(map[string]programEntry)}
}

func (r *MemoryProgramRepository) Upsert(_ context.Context, p domain.StudyProgram, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.ID] = programEntry{
		program:   p,
		embedding: append([]float32(nil), embedding...),
	}
	return nil
}

func (r *MemoryProgramRepository) ContentHashes(context.Context) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.program.ContentHash
	}
	return out, nil
}

func (r *MemoryProgramRepository) Delete(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.entries, id)
	}
	return nil
}

func (r *MemoryProgramRepository) Titles(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	titles := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		titles = append(titles, e.program.Title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (r *MemoryProgramRepository) Search(_ context.Context, embedding []float32, filter domain.ProgramFilter, k int) ([]domain.ScoredProgram, error) {
	if k <= 0 {
		k = 10
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ScoredProgram, 0, len(r.entries))
	for _, e := range r.entries {
		if !matchesFilter(e.program, filter) {
			continue
		}
		out = append(out, domain.ScoredProgram{
			Program:  e.program,
			Distance: cosineDistance(embedding, e.embedding),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].Program.Title < out[j].Program.Title
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func matchesFilter(p domain.StudyProgram, f domain.ProgramFilter) bool {
	if len(f.Languages) > 0 && !containsString(f.Languages, p.Language) {
		return false
	}
	if len(f.StudyForms) > 0 && !containsString(f.StudyForms, p.StudyForm) {
		return false
	}
	if len(f.Locations) > 0 {
		hit := false
		for _, loc := range p.Locations {
			if containsString(f.Locations, loc) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// cosineDistance replica el operador <=> de pgvector: 1 - similitud coseno.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
