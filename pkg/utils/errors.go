package utils

import (
	"errors"
	"fmt"
)

// FetchError covers network failures, timeouts, and HTTP-level blocks or
// throttling. Fetch errors are retryable by the scheduler's backoff policy.
type FetchError struct {
	Site       string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch failed for %s (status %d): %v", e.Site, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch failed for %s: %v", e.Site, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a transport-level failure for a site.
func NewFetchError(site, url string, err error) *FetchError {
	return &FetchError{Site: site, URL: url, Err: err}
}

// NewHTTPFetchError wraps an HTTP error status (4xx block, 429 throttle, 5xx).
func NewHTTPFetchError(site, url string, status int) *FetchError {
	return &FetchError{
		Site:       site,
		URL:        url,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

// ParseError means the expected page structure is absent, typically after a
// site redesign. Retrying does not help until the extractor is fixed, so the
// scheduler fails the job immediately and keeps the diagnostic for operators.
type ParseError struct {
	Site       string
	Diagnostic string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s: %s", e.Site, e.Diagnostic)
}

// NewParseError records a structural parse failure with its diagnostic.
func NewParseError(site, diagnostic string) *ParseError {
	return &ParseError{Site: site, Diagnostic: diagnostic}
}

// SinkError is a transient storage write failure. The pipeline retries the
// write with backoff without re-running the extractor.
type SinkError struct {
	CanonicalID string
	Err         error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink upsert failed for %s: %v", e.CanonicalID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewSinkError wraps a transient storage failure.
func NewSinkError(canonicalID string, err error) *SinkError {
	return &SinkError{CanonicalID: canonicalID, Err: err}
}

// ConfigError is fatal at startup: the pipeline must not run with missing or
// ambiguous site configuration.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Detail)
}

// NewConfigError reports an invalid or incomplete configuration.
func NewConfigError(detail string) *ConfigError {
	return &ConfigError{Detail: detail}
}

// IsRetryable reports whether the scheduler may retry the job after err.
func IsRetryable(err error) bool {
	var fe *FetchError
	var se *SinkError
	return errors.As(err, &fe) || errors.As(err, &se)
}

// IsParseError reports whether err is a structural parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
