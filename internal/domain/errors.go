package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the study engine.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindNoKnowledge        ErrorKind = "no_knowledge"
	KindStorageFailure     ErrorKind = "storage_failure"
	KindNotFound           ErrorKind = "not_found"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindConflict           ErrorKind = "conflict"
)

// DomainError represents a classified error with context.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func InvalidInput(message string, err error) *DomainError {
	return NewError(KindInvalidInput, message, err)
}

func BackendUnavailable(message string, err error) *DomainError {
	return NewError(KindBackendUnavailable, message, err)
}

func NoKnowledge(message string, err error) *DomainError {
	return NewError(KindNoKnowledge, message, err)
}

func StorageFailure(message string, err error) *DomainError {
	return NewError(KindStorageFailure, message, err)
}

func NotFound(message string, err error) *DomainError {
	return NewError(KindNotFound, message, err)
}

func Unauthorized(message string, err error) *DomainError {
	return NewError(KindUnauthorized, message, err)
}

func Conflict(message string, err error) *DomainError {
	return NewError(KindConflict, message, err)
}

// KindOf returns the kind of the first DomainError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
