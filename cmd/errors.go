package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitInput      = 3
	ExitGeneration = 4
	ExitDefects    = 5
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode returns the code carried by err, or ExitGeneral.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitGeneral
}

// exitWithError prints the error and exits with the appropriate code.
func exitWithError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	os.Exit(exitCode(err))
}

func configError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

func inputError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitInput, Message: msg, Err: err}
}

func generationError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneration, Message: msg, Err: err}
}
