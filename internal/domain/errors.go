package domain

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds. Detailed error types below unwrap to one or more of these,
// so callers branch with errors.Is and never on concrete types.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")

	// ErrSourceUnavailable covers network errors, timeouts and non-2xx
	// responses from a publication source. The pipeline treats the source as
	// having returned nothing.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord marks a fetched record that is dropped before
	// normalization: unparseable date, missing title and the like.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrStorageConflict is a unique-key race during an upsert. The record is
	// retried once as a lookup.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrPipelineFatal fails a whole author job: the author could not be
	// loaded, or the store is unreachable.
	ErrPipelineFatal = errors.New("pipeline failure")

	ErrJobNotFound = errors.New("job not found")
)

// ValidationError names the offending field of rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names a missing group, author, publication or report.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError is a duplicate key. It is both ErrAlreadyExists and
// ErrStorageConflict, so the upsert path can retry it as a lookup while the
// roster path reports it as a conflict.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

func (e *AlreadyExistsError) Unwrap() []error {
	return []error{ErrAlreadyExists, ErrStorageConflict}
}

// RateLimitError is a 429 from a source, with the wait it asked for.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError is a failed call to a publication source. StatusCode is
// zero for transport failures.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSourceUnavailable}
	}
	return []error{e.Cause, ErrSourceUnavailable}
}

// MalformedRecordError says why a fetched record was discarded.
type MalformedRecordError struct {
	Source string
	Reason string
}

func NewMalformedRecordError(source, reason string) *MalformedRecordError {
	return &MalformedRecordError{Source: source, Reason: reason}
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: %s", e.Source, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }
