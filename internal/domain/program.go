package domain

import "time"

// StudyProgram es un registro del catalogo; se carga una vez y solo se lee.
type StudyProgram struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Degree         string    `json:"degree"`
	StudyForm      string    `json:"study_form"`
	Locations      []string  `json:"locations"`
	Language       string    `json:"language"`
	Duration       string    `json:"duration"`
	Fee            string    `json:"fee"`
	Deadline       string    `json:"deadline,omitempty"`
	SemesterAbroad string    `json:"semester_abroad,omitempty"`
	Accreditation  string    `json:"accreditation,omitempty"`
	URL            string    `json:"url,omitempty"`
	Description    string    `json:"description"`
	ContentHash    string    `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

// ProgramFilter combina con AND cada campo; dentro de un campo los valores van con OR.
type ProgramFilter struct {
	Languages  []string `json:"languages,omitempty"`
	StudyForms []string `json:"study_forms,omitempty"`
	Locations  []string `json:"locations,omitempty"`
}

// IsEmpty indica si el filtro no restringe nada.
func (f ProgramFilter) IsEmpty() bool {
	return len(f.Languages) == 0 && len(f.StudyForms) == 0 && len(f.Locations) == 0
}

// ScoredProgram es un resultado del vecino mas cercano, ordenado por distancia.
type ScoredProgram struct {
	Program  StudyProgram `json:"program"`
	Distance float64      `json:"distance"`
}

// ProgramMatch es lo que se muestra al usuario: programa y por que encaja.
type ProgramMatch struct {
	Program     StudyProgram `json:"program"`
	Explanation string       `json:"explanation"`
}
