package models

import (
	"errors"
	"fmt"
)

// ValidationErrorKind classifies a domain-model constraint violation.
type ValidationErrorKind string

const (
	KindEmptyField           ValidationErrorKind = "EmptyField"
	KindMissingCorrectOption ValidationErrorKind = "MissingCorrectOption"
	KindDuplicateName        ValidationErrorKind = "DuplicateName"
	KindMissingParent        ValidationErrorKind = "MissingParent"
	KindHasDependents        ValidationErrorKind = "HasDependents"
	KindInvalidValue         ValidationErrorKind = "InvalidValue"
	KindNotFound             ValidationErrorKind = "NotFound"
)

// ValidationError is returned when an entity or request fails a constraint.
// It is local and never retryable.
type ValidationError struct {
	Kind    ValidationErrorKind
	Entity  EntityType // empty for request-level fields
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s.%s: %s", e.Kind, e.Entity, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationErrorKindOf returns the kind of a wrapped *ValidationError, or "".
func ValidationErrorKindOf(err error) ValidationErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
