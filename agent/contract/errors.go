package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrSearchFailed    = errors.New("web search failed")
	ErrValidation      = errors.New("validation failed")
)

// ErrorKind separates retryable stage failures from terminal ones. The
// orchestrator's retry decision is a function of the kind alone.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindTerminal  ErrorKind = "terminal"
)

// StageError wraps a stage failure with its retry classification.
type StageError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable for the given stage.
func Transient(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: ErrorKindTransient, Err: err}
}

// Terminal marks err as not retryable for the given stage.
func Terminal(stage string, err error) *StageError {
	return &StageError{Stage: stage, Kind: ErrorKindTerminal, Err: err}
}

// IsTransient reports whether err is a retryable stage failure. Errors that
// carry no classification are treated as terminal.
func IsTransient(err error) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Kind == ErrorKindTransient
}
