package repository

import (
	"context"
	"testing"

	"coach-llm/internal/domain"
)

func seedPrograms(t *testing.T) *MemoryProgramRepository {
	t.Helper()
	repo := NewMemoryProgramRepository()
	ctx := context.Background()
	programs := []struct {
		p   domain.StudyProgram
		vec []float32
	}{
		{domain.StudyProgram{ID: "1", Title: "International Management", Degree: "B.Sc.", Language: "Nur Englisch", StudyForm: "Vollzeit", Locations: []string{"Dortmund", "Berlin"}}, []float32{1, 0}},
		{domain.StudyProgram{ID: "2", Title: "Psychology & Management", Degree: "B.Sc.", Language: "Primär Deutsch, teils Englisch", StudyForm: "Vollzeit", Locations: []string{"Köln"}}, []float32{0.9, 0.1}},
		{domain.StudyProgram{ID: "3", Title: "Finance", Degree: "M.Sc.", Language: "Nur Englisch", StudyForm: "Dual", Locations: []string{"München"}}, []float32{0, 1}},
	}
	for _, e := range programs {
		if err := repo.Upsert(ctx, e.p, e.vec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	return repo
}

func TestMemoryProgramRepositorySearch(t *testing.T) {
	repo := seedPrograms(t)
	ctx := context.Background()

	t.Run("ordered by distance", func(t *testing.T) {
		got, err := repo.Search(ctx, []float32{1, 0}, domain.ProgramFilter{}, 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 3 || got[0].Program.ID != "1" || got[2].Program.ID != "3" {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("k limits results", func(t *testing.T) {
		got, _ := repo.Search(ctx, []float32{1, 0}, domain.ProgramFilter{}, 1)
		if len(got) != 1 {
			t.Fatalf("expected 1 result, got %d", len(got))
		}
	})

	t.Run("and across fields or within", func(t *testing.T) {
		filter := domain.ProgramFilter{
			Languages: []string{"Nur Englisch"},
			Locations: []string{"Berlin", "München"},
		}
		got, _ := repo.Search(ctx, []float32{1, 0}, filter, 10)
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %+v", got)
		}
		filter.StudyForms = []string{"Dual"}
		got, _ = repo.Search(ctx, []float32{1, 0}, filter, 10)
		if len(got) != 1 || got[0].Program.ID != "3" {
			t.Fatalf("expected only Finance, got %+v", got)
		}
	})

	t.Run("no hits", func(t *testing.T) {
		got, err := repo.Search(ctx, []float32{1, 0}, domain.ProgramFilter{Locations: []string{"Hamburg"}}, 10)
		if err != nil || len(got) != 0 {
			t.Fatalf("expected empty result, got %+v %v", got, err)
		}
	})
}

func TestMemoryProgramRepositoryHashesAndTitles(t *testing.T) {
	repo := seedPrograms(t)
	ctx := context.Background()
	_ = repo.Upsert(ctx, domain.StudyProgram{ID: "3", Title: "Finance", ContentHash: "h3"}, []float32{0, 1})

	hashes, _ := repo.ContentHashes(ctx)
	if len(hashes) != 3 || hashes["3"] != "h3" {
		t.Fatalf("unexpected hashes %v", hashes)
	}
	titles, _ := repo.Titles(ctx)
	if len(titles) != 3 || titles[0] != "Finance" {
		t.Fatalf("unexpected titles %v", titles)
	}
}

func TestCosineDistance(t *testing.T) {
	if d := cosineDistance([]float32{1, 0}, []float32{1, 0}); d > 1e-9 {
		t.Fatalf("expected 0, got %f", d)
	}
	if d := cosineDistance([]float32{1, 0}, []float32{0, 1}); d < 0.999 {
		t.Fatalf("expected 1, got %f", d)
	}
	if d := cosineDistance([]float32{0, 0}, []float32{0, 1}); d != 1 {
		t.Fatalf("expected zero vector distance 1, got %f", d)
	}
}

func TestMemoryProgramRepositoryDelete(t *testing.T) {
	repo := seedPrograms(t)
	ctx := context.Background()

	if err := repo.Delete(ctx, []string{"1", "missing"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hashes, _ := repo.ContentHashes(ctx)
	if len(hashes) != 2 {
		t.Fatalf("expected 2 programs left, got %v", hashes)
	}
	if _, ok := hashes["1"]; ok {
		t.Fatalf("program 1 should be gone")
	}
	if err := repo.Delete(ctx, nil); err != nil {
		t.Fatalf("empty delete: %v", err)
	}
}
