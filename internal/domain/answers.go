package domain

import (
	"encoding/json"
	"strings"
)

// AnswerValue guarda texto libre (un elemento) o una o varias opciones elegidas.
type AnswerValue []string

// UnmarshalJSON acepta tanto "texto" como ["a", "b"].
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = AnswerValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*v = AnswerValue(many)
	return nil
}

// IsEmpty indica si no hay ningun valor con contenido.
func (v AnswerValue) IsEmpty() bool {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// AnswerSet mapea la clave de cada pregunta a su respuesta.
type AnswerSet map[string]AnswerValue

// Clone copia el conjunto para que la sesion no comparta memoria con el llamador.
func (a AnswerSet) Clone() AnswerSet {
	if a == nil {
		return nil
	}
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = append(AnswerValue(nil), v...)
	}
	return out
}
