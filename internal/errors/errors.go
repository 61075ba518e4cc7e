// Package errors defines the categorized error taxonomy used across the
// report harvester: auth, transport, report, sink and credential failures.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents token/credential exchange failures
	CategoryAuth ErrorCategory = "auth"
	// CategoryTransport represents network/HTTP layer failures
	CategoryTransport ErrorCategory = "transport"
	// CategoryReport represents remote report-generation outcomes
	CategoryReport ErrorCategory = "report"
	// CategorySink represents artifact persistence failures
	CategorySink ErrorCategory = "sink"
	// CategoryCredential represents upstream secret retrieval failures
	CategoryCredential ErrorCategory = "credential"
)

// Transport error kinds.
const (
	KindRateLimited = "RATE_LIMITED"
	KindServerError = "SERVER_ERROR"
	KindClientError = "CLIENT_ERROR"
)

// Report error kinds.
const (
	KindFatal     = "FATAL"
	KindCancelled = "CANCELLED"
	KindTimeout   = "TIMEOUT"
)

// CategorizedError carries a category, a machine-readable kind and an
// optional cause.
type CategorizedError struct {
	Category ErrorCategory
	Kind     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates an authentication/token failure.
func NewAuthError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryAuth,
		Kind:     "AUTH_FAILED",
		Message:  message,
		Cause:    cause,
	}
}

// NewCredentialError creates a credential retrieval failure.
func NewCredentialError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCredential,
		Kind:     "CREDENTIALS_UNAVAILABLE",
		Message:  message,
		Cause:    cause,
	}
}

// NewRateLimitedError creates a transport error for exhausted 429 retries.
func NewRateLimitedError(attempts int, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransport,
		Kind:     KindRateLimited,
		Message:  fmt.Sprintf("rate limited after %d attempts", attempts),
		Details:  map[string]interface{}{"attempts": attempts},
		Cause:    cause,
	}
}

// NewServerError creates a transport error for exhausted 5xx retries.
func NewServerError(attempts int, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransport,
		Kind:     KindServerError,
		Message:  fmt.Sprintf("server error after %d attempts", attempts),
		Details:  map[string]interface{}{"attempts": attempts},
		Cause:    cause,
	}
}

// NewClientError creates a transport error for a non-retryable 4xx response.
func NewClientError(statusCode int, body string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransport,
		Kind:     KindClientError,
		Message:  fmt.Sprintf("request rejected with status %d", statusCode),
		Details: map[string]interface{}{
			"statusCode": statusCode,
			"body":       body,
		},
	}
}

// NewReportFatalError creates a report error for a job that ended FATAL.
func NewReportFatalError(reportID string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryReport,
		Kind:     KindFatal,
		Message:  fmt.Sprintf("report %s ended in FATAL state", reportID),
		Details:  map[string]interface{}{"reportId": reportID},
	}
}

// NewReportCancelledError creates a report error for a cancelled job.
func NewReportCancelledError(reportID string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryReport,
		Kind:     KindCancelled,
		Message:  fmt.Sprintf("report %s was cancelled", reportID),
		Details:  map[string]interface{}{"reportId": reportID},
	}
}

// NewReportTimeoutError creates a report error for a poll deadline overrun.
func NewReportTimeoutError(reportID string, lastStatus string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryReport,
		Kind:     KindTimeout,
		Message:  fmt.Sprintf("report %s still %s at poll deadline", reportID, lastStatus),
		Details: map[string]interface{}{
			"reportId":   reportID,
			"lastStatus": lastStatus,
		},
	}
}

// NewSinkError creates a persistence failure.
func NewSinkError(name string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySink,
		Kind:     "SINK_FAILED",
		Message:  fmt.Sprintf("sink operation failed for %s", name),
		Details:  map[string]interface{}{"artifact": name},
		Cause:    cause,
	}
}

// categoryOf extracts the category of err, or "" if err is not categorized.
func categoryOf(err error) ErrorCategory {
	var ce *CategorizedError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// KindOf returns the kind of a categorized error, or "" otherwise.
func KindOf(err error) string {
	var ce *CategorizedError
	if stderrors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsAuthError reports whether err is an auth failure.
func IsAuthError(err error) bool {
	return categoryOf(err) == CategoryAuth
}

// IsCredentialError reports whether err is a credential retrieval failure.
func IsCredentialError(err error) bool {
	return categoryOf(err) == CategoryCredential
}

// IsTransportError reports whether err is a transport failure.
func IsTransportError(err error) bool {
	return categoryOf(err) == CategoryTransport
}

// IsReportError reports whether err is a remote report-generation failure.
func IsReportError(err error) bool {
	return categoryOf(err) == CategoryReport
}

// IsSinkError reports whether err is a persistence failure.
func IsSinkError(err error) bool {
	return categoryOf(err) == CategorySink
}
