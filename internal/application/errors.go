package application

import (
	"errors"
	"fmt"

	"github.com/example/intellidesk/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a record with the same identity is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrUnavailable is returned when no resource can satisfy a request.
	ErrUnavailable = errors.New("application: resource unavailable")
	// ErrConflict is returned when a record is not in a state that allows the operation.
	ErrConflict = errors.New("application: conflict")
	// ErrInvalidCode is returned when an access code matches no pending request.
	ErrInvalidCode = errors.New("application: invalid access code")
	// ErrCodeExpired is returned when an access code is past its expiry.
	ErrCodeExpired = errors.New("application: access code expired")
	// ErrRequestExpired is returned when a pending equipment request lapsed.
	ErrRequestExpired = errors.New("application: request expired")
	// ErrAttemptsExhausted is returned once automated troubleshooting hit its limit.
	ErrAttemptsExhausted = errors.New("application: troubleshooting attempts exhausted")
	// ErrNoAdminAvailable is returned when a ticket cannot be escalated to anyone.
	ErrNoAdminAvailable = errors.New("application: no admin available")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// mapRecordError converts store errors into application sentinels.
func mapRecordError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
