package apperrors

import "errors"

var (
	ErrConflict          = errors.New("a generation run is already in progress")
	ErrMissingCredential = errors.New("missing API key")
	ErrInvalidInput      = errors.New("invalid input")
)
