package catalog

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"coach-llm/internal/domain"
)

var (
	ErrInvalidRecord   = errors.New("invalid catalog record")
	ErrDuplicateRecord = errors.New("duplicate catalog record")
)

// programNamespace deriva IDs estables a partir de la identidad completa de la fila.
var programNamespace = uuid.MustParse("6f1c1f0e-5b7a-4c1e-9a43-2d7c3e9b8a10")

// locationColumns traduce las columnas booleanas loc_* a ciudades.
var locationColumns = map[string]string{
	"loc_dor": "Dortmund",
	"loc_ffm": "Frankfurt/Main",
	"loc_muc": "München",
	"loc_hh":  "Hamburg",
	"loc_cgn": "Köln",
	"loc_stu": "Stuttgart",
	"loc_bln": "Berlin",
}

// locationOrder fija el orden de salida de las ciudades.
var locationOrder = []string{"loc_dor", "loc_ffm", "loc_muc", "loc_hh", "loc_cgn", "loc_stu", "loc_bln"}

var headerAliases = map[string]string{
	"titel des studiengangs":    "title",
	"title":                     "title",
	"kurzbeschreibung":          "description",
	"description":               "description",
	"abschluss":                 "degree",
	"degree":                    "degree",
	"studienform":               "study_form",
	"study_form":                "study_form",
	"unterrichtssprache (kurz)": "language",
	"unterrichtssprache":        "language",
	"language":                  "language",
	"url":                       "url",
	"studiengebühren":           "fee",
	"fee":                       "fee",
	"regelstudienzeit":          "duration",
	"duration":                  "duration",
	"bewerbungsfrist":           "deadline",
	"deadline":                  "deadline",
	"auslandssemester":          "semester_abroad",
	"semester_abroad":           "semester_abroad",
	"akkreditierung":            "accreditation",
	"accreditation":             "accreditation",
	"standorte":                 "locations",
	"locations":                 "locations",
}

// LoadFile carga el catalogo desde CSV o JSON segun la extension.
func LoadFile(path string) ([]domain.StudyProgram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}
}

// ParseCSV lee el formato exportado del catalogo, con cabeceras en aleman o ingles.
func ParseCSV(r io.Reader) ([]domain.StudyProgram, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if alias, ok := headerAliases[key]; ok {
			key = alias
		}
		columns[key] = i
	}
	if _, ok := columns["title"]; !ok {
		return nil, fmt.Errorf("%w: missing title column", ErrInvalidRecord)
	}

	var programs []domain.StudyProgram
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read catalog line %d: %w", line, err)
		}
		get := func(key string) string {
			i, ok := columns[key]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		p := domain.StudyProgram{
			Title:          get("title"),
			Description:    get("description"),
			Degree:         get("degree"),
			StudyForm:      get("study_form"),
			Language:       get("language"),
			URL:            get("url"),
			Fee:            get("fee"),
			Duration:       get("duration"),
			Deadline:       get("deadline"),
			SemesterAbroad: get("semester_abroad"),
			Accreditation:  get("accreditation"),
		}
		for _, col := range locationOrder {
			if parseBool(get(col)) {
				p.Locations = append(p.Locations, locationColumns[col])
			}
		}
		if raw := get("locations"); raw != "" && len(p.Locations) == 0 {
			p.Locations = splitList(raw)
		}

		if err := finalize(&p); err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		programs = append(programs, p)
	}
	if err := ensureUnique(programs); err != nil {
		return nil, err
	}
	return programs, nil
}

// ParseJSON lee una lista de programas con los nombres de campo de domain.StudyProgram.
func ParseJSON(r io.Reader) ([]domain.StudyProgram, error) {
	var programs []domain.StudyProgram
	if err := json.NewDecoder(r).Decode(&programs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range programs {
		if err := finalize(&programs[i]); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
	}
	if err := ensureUnique(programs); err != nil {
		return nil, err
	}
	return programs, nil
}

// EmbeddingText es el texto que representa un programa en el indice.
func EmbeddingText(p domain.StudyProgram) string {
	return fmt.Sprintf("Studiengang: %s\nKurzbeschreibung: %s", p.Title, p.Description)
}

func finalize(p *domain.StudyProgram) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Degree = strings.TrimSpace(p.Degree)
	if p.Title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidRecord)
	}
	if p.Degree == "" {
		return fmt.Errorf("%w: degree required for %q", ErrInvalidRecord, p.Title)
	}
	if p.Locations == nil {
		p.Locations = []string{}
	}
	if p.ID == "" {
		p.ID = uuid.NewSHA1(programNamespace, []byte(identityKey(*p))).String()
	}
	p.ContentHash = contentHash(*p)
	return nil
}

// identityKey distingue ofertas del mismo titulo por modalidad, idioma y sedes.
func identityKey(p domain.StudyProgram) string {
	return strings.Join([]string{
		p.Title, p.Degree, p.StudyForm, p.Language, strings.Join(p.Locations, ","),
	}, "|")
}

// ensureUnique rechaza filas que colapsarian en el mismo registro del indice.
func ensureUnique(programs []domain.StudyProgram) error {
	seen := make(map[string]string, len(programs))
	for _, p := range programs {
		if prev, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: %q and %q share id %s", ErrDuplicateRecord, prev, p.Title, p.ID)
		}
		seen[p.ID] = p.Title
	}
	return nil
}

func contentHash(p domain.StudyProgram) string {
	h := sha256.New()
	for _, part := range []string{
		p.Title, p.Degree, p.StudyForm, strings.Join(p.Locations, ","), p.Language,
		p.Duration, p.Fee, p.Deadline, p.SemesterAbroad, p.Accreditation, p.URL, p.Description,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	h = strings.ReplaceAll(h, "\u00AD", "")
	return strings.ToLower(strings.TrimSpace(h))
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "ja", "yes", "x", "wahr":
		return true
	}
	return false
}

func splitList(raw string) []string {
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
