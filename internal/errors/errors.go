package errors

import (
	"errors"
	"fmt"
)

// Error kinds returned by the domain services. Callers match with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrDuplicateSwipe  = errors.New("duplicate swipe")
	ErrRateLimited     = errors.New("rate limited")
	ErrEmptyContent    = errors.New("empty content")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrInvalidArgument = errors.New("invalid argument")
)

// FieldError is an ErrInvalidArgument tied to one input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidArgument, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidArgument }

// Invalid reports a rejected input field.
func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// Unavailable marks a backend failure while keeping the cause reachable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// NotFound wraps ErrNotFound with the missing thing.
func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// RetryError is a partial success: an earlier write landed, Err stopped the
// rest, and Method is the call that finishes the job without repeating it.
type RetryError struct {
	Reason string
	Method string
	Err    error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s (retry with %s): %v", e.Reason, e.Method, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryWith marks err as recoverable by calling method.
func RetryWith(reason, method string, err error) error {
	if err == nil {
		return nil
	}
	return &RetryError{Reason: reason, Method: method, Err: err}
}

// Is and As are re-exported so callers that import this package as errors
// do not also need the standard one.
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
