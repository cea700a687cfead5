// Package resilience decides which reconciliation failures Temporal may retry.
//
// An author reconciliation fails as a whole only when its author cannot be
// loaded or its input is malformed; source outages and per-record storage
// errors are absorbed by the pipeline. What reaches an activity boundary is
// therefore either a bad job (never retried) or an infrastructure hiccup
// (retried with backoff).
package resilience

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// ErrorCategory says whether an activity attempt may be retried.
type ErrorCategory int

const (
	Transient ErrorCategory = iota
	Permanent
)

func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Application error types of non-retryable activity failures.
const (
	ErrorTypeNotFound     = "not_found"
	ErrorTypeInvalidInput = "invalid_input"
	ErrorTypeUnauthorized = "unauthorized"
	ErrorTypePermanent    = "permanent"
)

// permanentKinds maps domain failures that no retry can fix onto their
// application error type.
var permanentKinds = []struct {
	kind    error
	errType string
}{
	{domain.ErrNotFound, ErrorTypeNotFound},
	{domain.ErrInvalidInput, ErrorTypeInvalidInput},
	{domain.ErrUnauthorized, ErrorTypeUnauthorized},
}

// NonRetryableErrorTypes lists the types ToActivityError produces, for use in
// workflow retry policies.
func NonRetryableErrorTypes() []string {
	types := make([]string, 0, len(permanentKinds)+1)
	for _, p := range permanentKinds {
		types = append(types, p.errType)
	}
	return append(types, ErrorTypePermanent)
}

// Classify returns Permanent for missing authors, bad input, rejected
// credentials and non-retryable application errors. A nil error is also
// Permanent so callers never retry it. Anything else is Transient.
func Classify(err error) ErrorCategory {
	if err == nil {
		return Permanent
	}
	if _, ok := permanentType(err); ok {
		return Permanent
	}
	return Transient
}

func permanentType(err error) (string, bool) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.NonRetryable() {
		return appErr.Type(), true
	}
	for _, p := range permanentKinds {
		if errors.Is(err, p.kind) {
			return p.errType, true
		}
	}
	return "", false
}

// ToActivityError turns a permanent failure into a non-retryable application
// error so the workflow fails without burning its retry budget. Transient
// errors and existing application errors pass through unchanged.
func ToActivityError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}
	errType, ok := permanentType(err)
	if !ok {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}
