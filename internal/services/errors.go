package services

import (
	"errors"
	"fmt"

	"complaint-workflow-service/internal/repository"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNoMatchingCondition = errors.New("no matching condition")
	ErrConflict            = errors.New("conflict")
	ErrNoEligibleEmployee  = errors.New("no eligible employee")
	ErrConfiguration       = errors.New("configuration error")
	ErrForbidden           = errors.New("forbidden")
)

// Error is a typed service failure. For transition failures it carries the
// complaint's current status and the actions that are allowed from there.
type Error struct {
	Kind           error
	Message        string
	CurrentStatus  string
	AllowedActions []string
	Details        []string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(details []string) *Error {
	return &Error{Kind: ErrValidation, Message: "validation failed", Details: details}
}

// AsError extracts the typed error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// mapRepoError turns repository sentinels into service error kinds
func mapRepoError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "%s not found", what)
	case errors.Is(err, repository.ErrVersionConflict):
		return newError(ErrConflict, "%s was modified concurrently, re-fetch and retry", what)
	case errors.Is(err, repository.ErrCapacityExceeded):
		return newError(ErrConflict, "employee reached maximum capacity concurrently")
	}
	return err
}
