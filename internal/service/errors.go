package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotConfigured  = errors.New("service not configured")
	ErrValidation     = errors.New("validation failed")
	ErrSessionLimited = errors.New("session limit reached")
	ErrInvalidState   = errors.New("invalid session state")
	ErrWrongVariant   = errors.New("operation not supported by variant")
	ErrCompletion     = errors.New("completion failed")
	ErrRetrieval      = errors.New("retrieval failed")
	ErrRateLimited    = errors.New("rate limited")
)

// ValidationError enumera las claves que faltan o traen valores no permitidos.
type ValidationError struct {
	Missing []string
	Invalid []string
	Reason  string
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0 && e.Reason == ""
}

func (e *ValidationError) sorted() *ValidationError {
	sort.Strings(e.Missing)
	sort.Strings(e.Invalid)
	return e
}

func validationReason(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}
