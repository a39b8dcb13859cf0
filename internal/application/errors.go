package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when an operation requires a signed-in principal.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the principal's access level is too low.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist or is not visible.
	ErrNotFound = errors.New("application: not found")
	// ErrDuplicateAttendance is returned when a user checks in to the same event twice.
	ErrDuplicateAttendance = errors.New("application: already checked in")
	// ErrInvalidInput is returned for malformed caller input. *ValidationError matches it.
	ErrInvalidInput = errors.New("application: invalid input")
	// ErrEventNotInProgress is returned when checking in outside the event window.
	ErrEventNotInProgress = errors.New("application: event not in progress")
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
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Is makes every ValidationError match ErrInvalidInput.
func (v *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
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

func invalidField(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// StoreError reports a datastore failure. The underlying error is kept for
// logging but callers should only branch on the type.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err as a StoreError for the named operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s failed", e.Op)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeError passes application error kinds through and wraps anything else
// as a StoreError, so every service returns one of the documented kinds.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		sErr *StoreError
		vErr *ValidationError
	)
	switch {
	case errors.As(err, &sErr), errors.As(err, &vErr):
		return err
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateAttendance),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrEventNotInProgress):
		return err
	}
	return NewStoreError(op, err)
}
