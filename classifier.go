package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/google/uuid"
)

// HTTPError represents an error with an associated HTTP status code.
// Many HTTP client libraries provide errors that implement this interface.
type HTTPError interface {
	error
	StatusCode() int
}

// Classifier maps raw failures into a (category, retryable, severity) triple.
// Classification is purely a function of error shape: it performs no I/O and
// never panics.
type Classifier struct{}

// NewClassifier creates a stateless Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the classification for a raw error. Errors that already
// carry a classification keep it.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return classificationFor(CategoryInternal)
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return Classification{
			Category:  classified.Category,
			Retryable: classified.Retryable,
			Severity:  classified.Severity,
		}
	}

	// Context errors first: a canceled or exceeded parent context must not
	// be retried with the same context.
	if errors.Is(err, context.DeadlineExceeded) {
		return classificationFor(CategoryTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return Classification{Category: CategoryInternal, Retryable: false, Severity: SeverityLow}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classificationFor(CategoryTimeout)
	}

	if jperrors.IsTimeout(err) {
		return classificationFor(CategoryTimeout)
	}
	if errors.Is(err, jperrors.ErrRateLimited) {
		return classificationFor(CategoryRateLimited)
	}

	if status := extractStatusCode(err); status != 0 {
		return classificationFor(categoryForStatus(status))
	}

	return classificationFor(categoryForMessage(err.Error()))
}

// NewError wraps a raw error into a ClassifiedError with a fresh correlation
// ID and localized user messages. Already-classified errors pass through
// unchanged so the correlation ID survives the retry and fallback layers.
func (c *Classifier) NewError(cause error, lang Language, service, operation string) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(cause, &classified) {
		return classified
	}
	return c.build(cause, c.Classify(cause), lang, service, operation)
}

// NewRejection builds the SERVICE_UNAVAILABLE error the layer raises on its
// own behalf (circuit open, backpressure, degradation, shutdown).
func (c *Classifier) NewRejection(reason RejectionReason, cause error, lang Language, service, operation string) *ClassifiedError {
	e := c.build(cause, classificationFor(CategoryServiceUnavailable), lang, service, operation)
	e.Reason = reason
	if reason == ReasonShutdown {
		e.Retryable = false
	}
	return e
}

func (c *Classifier) build(cause error, cls Classification, lang Language, service, operation string) *ClassifiedError {
	msg := lookupMessage(lang, cls.Category)
	e := &ClassifiedError{
		Category:      cls.Category,
		Title:         msg.Title,
		Message:       msg.Message,
		Action:        msg.Action,
		Severity:      cls.Severity,
		Retryable:     cls.Retryable,
		Service:       service,
		Operation:     operation,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		cause:         cause,
	}
	if cls.Severity == SeverityHigh || cls.Severity == SeverityCritical {
		e.SupportHint = lookupSupportHint(lang)
	}
	return e
}

// classificationFor returns the default retryability and severity per
// category. DATABASE_ERROR is retryable with caution; RATE_LIMIT_EXCEEDED is
// retryable after a delay; INTERNAL covers everything unrecognized and is
// deliberately not retryable.
func classificationFor(category ErrorCategory) Classification {
	switch category {
	case CategoryNetwork:
		return Classification{CategoryNetwork, true, SeverityMedium}
	case CategoryTimeout:
		return Classification{CategoryTimeout, true, SeverityMedium}
	case CategoryServiceUnavailable:
		return Classification{CategoryServiceUnavailable, true, SeverityHigh}
	case CategoryValidation:
		return Classification{CategoryValidation, false, SeverityLow}
	case CategoryAuthFailed:
		return Classification{CategoryAuthFailed, false, SeverityMedium}
	case CategoryTokenExpired:
		return Classification{CategoryTokenExpired, false, SeverityMedium}
	case CategoryPermissionDenied:
		return Classification{CategoryPermissionDenied, false, SeverityMedium}
	case CategoryNotFound:
		return Classification{CategoryNotFound, false, SeverityLow}
	case CategoryDatabase:
		return Classification{CategoryDatabase, true, SeverityHigh}
	case CategoryRateLimited:
		return Classification{CategoryRateLimited, true, SeverityLow}
	default:
		return Classification{CategoryInternal, false, SeverityHigh}
	}
}

// categoryForStatus maps an upstream HTTP status to a category. An upstream
// 500 is treated as INTERNAL (non-retryable); 502/503/504 as
// SERVICE_UNAVAILABLE (retryable).
func categoryForStatus(status int) ErrorCategory {
	switch status {
	case 400, 422:
		return CategoryValidation
	case 401:
		return CategoryAuthFailed
	case 403:
		return CategoryPermissionDenied
	case 404:
		return CategoryNotFound
	case 408:
		return CategoryTimeout
	case 429:
		return CategoryRateLimited
	case 502, 503, 504:
		return CategoryServiceUnavailable
	default:
		return CategoryInternal
	}
}

// categoryForMessage folds the original system's duck-typed error flags
// (err.networkError, err.name === 'TokenExpiredError', message probing) into
// one substring table.
func categoryForMessage(message string) ErrorCategory {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, "token expired", "jwt expired", "tokenexpirederror"):
		return CategoryTokenExpired
	case containsAny(msg, "unauthorized", "invalid credentials", "authentication failed", "invalid api key"):
		return CategoryAuthFailed
	case containsAny(msg, "forbidden", "permission denied", "insufficient permission"):
		return CategoryPermissionDenied
	case containsAny(msg, "rate limit", "too many requests", "quota exceeded"):
		return CategoryRateLimited
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(msg, "service unavailable", "bad gateway", "temporarily unavailable"):
		return CategoryServiceUnavailable
	case containsAny(msg, "connection refused", "connection reset", "no such host", "broken pipe", "network is unreachable", "dns"):
		return CategoryNetwork
	case containsAny(msg, "database", "sql:", "pq:", "pgx", "deadlock", "connection pool"):
		return CategoryDatabase
	case containsAny(msg, "not found", "no rows"):
		return CategoryNotFound
	case containsAny(msg, "validation", "invalid input", "required field", "malformed"):
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractStatusCode attempts to extract an HTTP status code from the error.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

// StatusCodeError wraps an error with an HTTP status code. Use it to carry
// status information from clients that don't provide it.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}
