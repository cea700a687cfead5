package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// Exit codes.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // Runtime failure
	ExitConfigError = 2 // Configuration or connectivity error
	ExitDataError   = 3 // Invalid input
	ExitNotFound    = 4 // Unknown author or job
)

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// configError marks failures that happen before any command logic runs.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// outputJSON writes a value as formatted JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError writes err as JSON to stdout and exits with code.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if err := outputJSON(os.Stdout, ErrorResponse{Error: msg}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
	os.Exit(code)
}

// exitCodeFor maps an error to a process exit code.
func exitCodeFor(err error) int {
	var cfgErr *configError
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.Is(err, domain.ErrInvalidInput):
		return ExitDataError
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}

// parseSince returns the --since date, or fallback when the flag is empty.
func parseSince(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	since, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("since", fmt.Sprintf("expected YYYY-MM-DD, got %q", value))
	}
	return since, nil
}
