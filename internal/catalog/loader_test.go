package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = "Titel des Studiengangs,Kurzbeschreibung,Abschluss,Studienform,Unterrichtssprache (kurz),URL,Studiengebühren,Regel\u00adstudien\u00adzeit,loc_dor,loc_muc,loc_bln\n" +
	"International Management,Global denken,B.Sc.,Vollzeit,Nur Englisch,https://x,850,7 Semester,1,0,True\n" +
	"Finance,Kapitalmärkte,M.Sc.,Dual,Nur Englisch,https://y,990,4 Semester,0,1,0\n"

func TestParseCSV(t *testing.T) {
	programs, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(programs))
	}
	im := programs[0]
	if im.Title != "International Management" || im.Degree != "B.Sc." || im.Language != "Nur Englisch" {
		t.Fatalf("unexpected program %+v", im)
	}
	if im.Duration != "7 Semester" {
		t.Fatalf("soft hyphen header not normalized, duration=%q", im.Duration)
	}
	if strings.Join(im.Locations, ",") != "Dortmund,Berlin" {
		t.Fatalf("unexpected locations %v", im.Locations)
	}
	if im.ID == "" || im.ContentHash == "" {
		t.Fatalf("expected derived id and hash")
	}

	again, _ := ParseCSV(strings.NewReader(sampleCSV))
	if again[0].ID != im.ID || again[0].ContentHash != im.ContentHash {
		t.Fatalf("expected deterministic id and hash")
	}
}

func TestParseCSV_MissingDegree(t *testing.T) {
	raw := "title,degree\nFinance,\n"
	if _, err := ParseCSV(strings.NewReader(raw)); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestParseCSV_MissingTitleColumn(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("foo,bar\n1,2\n")); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestParseJSON(t *testing.T) {
	raw := `[{"title":"Finance","degree":"M.Sc.","locations":["München"],"description":"x"}]`
	programs, err := ParseJSON(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(programs) != 1 || programs[0].Locations[0] != "München" || programs[0].ID == "" {
		t.Fatalf("unexpected programs %+v", programs)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "programs.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	txt := filepath.Join(dir, "programs.txt")
	_ = os.WriteFile(txt, []byte("x"), 0o600)
	if _, err := LoadFile(txt); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestShippedCatalogLoads(t *testing.T) {
	programs, err := LoadFile(filepath.Join("..", "..", "data", "study_programs.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(programs) < 3 {
		t.Fatalf("expected shipped catalog to have programs, got %d", len(programs))
	}
}

func TestParseCSV_SameTitleDifferentStudyForm(t *testing.T) {
	raw := "title,degree,study_form,language\n" +
		"Marketing,B.A.,Vollzeit,Nur Englisch\n" +
		"Marketing,B.A.,Dual,Nur Englisch\n"
	programs, err := ParseCSV(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(programs))
	}
	if programs[0].ID == programs[1].ID {
		t.Fatalf("offers of the same program must get distinct ids, both %s", programs[0].ID)
	}
}

func TestParseCSV_DuplicateRows(t *testing.T) {
	raw := "title,degree,study_form\n" +
		"Marketing,B.A.,Dual\n" +
		"Marketing,B.A.,Dual\n"
	if _, err := ParseCSV(strings.NewReader(raw)); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
}

func TestParseJSON_DuplicateIDs(t *testing.T) {
	raw := `[{"id":"p1","title":"Finance","degree":"M.Sc."},{"id":"p1","title":"Design","degree":"B.A."}]`
	if _, err := ParseJSON(strings.NewReader(raw)); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
}
