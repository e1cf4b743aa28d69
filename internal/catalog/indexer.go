package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coach-llm/internal/domain"
	"coach-llm/internal/llm"
	"coach-llm/internal/repository"
)

// Indexer embebe programas y los vuelca en el repositorio vectorial.
type Indexer struct {
	repo        repository.ProgramRepository
	embedder    llm.Embedder
	logger      *zap.Logger
	concurrency int
}

type SyncResult struct {
	Embedded int
	Skipped  int
	Removed  int
}

func NewIndexer(repo repository.ProgramRepository, embedder llm.Embedder, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{repo: repo, embedder: embedder, logger: logger, concurrency: 4}
}

// Sync indexa los programas cuyo hash de contenido cambio, omite el resto y
// borra del indice los que ya no estan en el catalogo.
func (ix *Indexer) Sync(ctx context.Context, programs []domain.StudyProgram) (SyncResult, error) {
	var res SyncResult
	if ix == nil || ix.repo == nil || ix.embedder == nil {
		return res, fmt.Errorf("catalog indexer not configured")
	}

	existing, err := ix.repo.ContentHashes(ctx)
	if err != nil {
		return res, fmt.Errorf("load content hashes: %w", err)
	}

	var pending []domain.StudyProgram
	for _, p := range programs {
		if existing[p.ID] == p.ContentHash && p.ContentHash != "" {
			res.Skipped++
			continue
		}
		pending = append(pending, p)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for _, p := range pending {
		g.Go(func() error {
			vec, err := ix.embedder.CreateEmbedding(gctx, EmbeddingText(p))
			if err != nil {
				return fmt.Errorf("embed %q: %w", p.Title, err)
			}
			if err := ix.repo.Upsert(gctx, p, vec); err != nil {
				return fmt.Errorf("upsert %q: %w", p.Title, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Embedded = len(pending)

	loaded := make(map[string]bool, len(programs))
	for _, p := range programs {
		loaded[p.ID] = true
	}
	var stale []string
	for id := range existing {
		if !loaded[id] {
			stale = append(stale, id)
		}
	}
	if err := ix.repo.Delete(ctx, stale); err != nil {
		return res, fmt.Errorf("delete stale programs: %w", err)
	}
	res.Removed = len(stale)

	ix.logger.Info("catalog synced",
		zap.Int("embedded", res.Embedded),
		zap.Int("skipped", res.Skipped),
		zap.Int("removed", res.Removed),
	)
	return res, nil
}
