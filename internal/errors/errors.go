// Package errors provides the typed failures of a download run and the retry
// policy that recovers from transient fetch failures. Failures are classified
// for structured logging; classification never changes whether a fetch
// failure is retried.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"         // Network connectivity issues
	ErrorTypeTimeout        ErrorType = "timeout"         // Request timeout
	ErrorTypeRateLimit      ErrorType = "rate_limit"      // HTTP 429
	ErrorTypeServerError    ErrorType = "server_error"    // HTTP 5xx errors
	ErrorTypeBadRequest     ErrorType = "bad_request"     // HTTP 4xx errors (except rate limit)
	ErrorTypeInvalidPayload ErrorType = "invalid_payload" // 200 response without a usable body
	ErrorTypeUnknown        ErrorType = "unknown"         // Unclassified errors
)

// ParseError reports a date or configuration value that could not be parsed.
// It is raised before any request is issued and is fatal for the run.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FetchFailure is a single failed page request: either a non-200 status or a
// transport error. StatusCode is zero for transport errors.
type FetchFailure struct {
	URL        string
	StatusCode int
	Type       ErrorType
	Err        error
}

func (e *FetchFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request to %s failed with status %d (%s)", e.URL, e.StatusCode, e.Type)
	}
	return fmt.Sprintf("request to %s failed (%s): %v", e.URL, e.Type, e.Err)
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned once a bounded retry policy has used every
// attempt without a success.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// WriteError reports a failure to persist the dataset.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewStatusFailure builds the failure for a non-200 response.
func NewStatusFailure(url string, status int) *FetchFailure {
	return &FetchFailure{
		URL:        url,
		StatusCode: status,
		Type:       ClassifyStatus(status),
		Err:        fmt.Errorf("unexpected status %d %s", status, http.StatusText(status)),
	}
}

// NewTransportFailure builds the failure for a request that never produced a response.
func NewTransportFailure(url string, err error) *FetchFailure {
	return &FetchFailure{
		URL:  url,
		Type: ClassifyTransport(err),
		Err:  err,
	}
}

// ClassifyStatus maps an HTTP status code to an error type
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

// ClassifyTransport maps a transport-level error to an error type
func ClassifyTransport(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	if isNetworkError(err) {
		return ErrorTypeNetwork
	}
	return ErrorTypeUnknown
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"network unreachable",
		"eof",
		"dns",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// IsRetryable reports whether err is a fetch failure. Every fetch failure is
// retried the same way regardless of its type.
func IsRetryable(err error) bool {
	var ff *FetchFailure
	return errors.As(err, &ff)
}

// GetErrorType extracts the error type from a fetch failure
func GetErrorType(err error) ErrorType {
	var ff *FetchFailure
	if errors.As(err, &ff) {
		return ff.Type
	}
	return ErrorTypeUnknown
}
