package domain

import (
	"errors"
	"fmt"
)

// RetriableError marks errors that a caller may retry with backoff.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether err (or anything it wraps) can be retried.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ParseError means a scraped page was fetched but a required field was
// missing or unparsable. Recoverable per unit: skip the binding, keep going.
type ParseError struct {
	Source string
	Symbol string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s/%s: %s", e.Source, e.Symbol, e.Reason)
}

func (e *ParseError) IsRetriable() bool { return false }

// FetchError is a transient page-load failure: the ready selector never
// appeared (Timeout) or the browser session itself failed. Retryable.
type FetchError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch %s: timed out waiting for page content", e.URL)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) IsRetriable() bool { return true }

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigurationError rejects a run before any fetch happens: unknown source,
// disabled instrument, invalid scope. Never retriable.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) IsRetriable() bool { return false }

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

var (
	// ErrNotFound is returned by lookups when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrNoData is returned by latest-tick queries when no tick exists for
	// an instrument from any enabled source.
	ErrNoData = errors.New("no price data")
)
