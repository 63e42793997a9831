// Package errors defines the error values produced by pipeline stages and
// the Reporter capability through which stages surface per-file failures.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeWatch     ErrorType = "watch"
	ErrorTypeConfig    ErrorType = "config"
)

// StageError is a failure of one file (or one watcher event) inside a stage.
type StageError struct {
	Type  ErrorType
	Stage string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, "["+e.Stage+"]")
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		if result != "" {
			result += ": "
		}
		result += e.Cause.Error()
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// Message returns the cause text without the stage and path prefix.
func (e *StageError) Message() string {
	if e.Cause == nil {
		return string(e.Type) + " error"
	}
	return e.Cause.Error()
}

// New creates a StageError.
func New(errType ErrorType, stage, path string, cause error) *StageError {
	return &StageError{Type: errType, Stage: stage, Path: path, Cause: cause}
}

// IO wraps a read or write failure.
func IO(stage, path string, cause error) *StageError {
	return New(ErrorTypeIO, stage, path, cause)
}

// Transform wraps a failure of a content transformation step.
func Transform(stage, path string, cause error) *StageError {
	return New(ErrorTypeTransform, stage, path, cause)
}

// Newf is a convenience for creating a StageError from a format string.
func Newf(errType ErrorType, stage, path, format string, args ...interface{}) *StageError {
	return New(errType, stage, path, fmt.Errorf(format, args...))
}

// AsStageError extracts a StageError from err if there is one in its chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsType reports whether err is a StageError of the given type.
func IsType(err error, errType ErrorType) bool {
	se, ok := AsStageError(err)
	return ok && se.Type == errType
}
