package catalog

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrContentExists = conflict("chapter already has a content item")
	ErrQuizExists    = conflict("a quiz already exists for this chapter")
	ErrOrderTaken    = conflict("order is already used in this scope")
	ErrIDTaken       = conflict("id is already used")
)

type conflictError struct{ msg string }

func conflict(msg string) error { return &conflictError{msg: msg} }

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool { return target == ErrConflict }

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned when input is rejected before any state changes.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Fields: flds}
}

// Invalid is shorthand for a single-field ValidationError.
func Invalid(field, msg string) error {
	return NewValidationError(FieldError{Field: field, Error: msg})
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
