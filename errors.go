package resilience

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCategory is the closed set of failure categories produced by the
// Classifier. Downstream code switches on the category instead of probing
// error shapes ad hoc.
type ErrorCategory string

const (
	CategoryNetwork            ErrorCategory = "NETWORK_ERROR"
	CategoryTimeout            ErrorCategory = "TIMEOUT_ERROR"
	CategoryServiceUnavailable ErrorCategory = "SERVICE_UNAVAILABLE"
	CategoryValidation         ErrorCategory = "VALIDATION_ERROR"
	CategoryAuthFailed         ErrorCategory = "AUTH_FAILED"
	CategoryTokenExpired       ErrorCategory = "TOKEN_EXPIRED"
	CategoryPermissionDenied   ErrorCategory = "INSUFFICIENT_PERMISSIONS"
	CategoryNotFound           ErrorCategory = "DATA_NOT_FOUND"
	CategoryDatabase           ErrorCategory = "DATABASE_ERROR"
	CategoryRateLimited        ErrorCategory = "RATE_LIMIT_EXCEEDED"
	CategoryInternal           ErrorCategory = "INTERNAL_ERROR"
)

// Severity grades how serious a classified failure is. High and critical
// severities carry a support contact hint in the user-facing message.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RejectionReason distinguishes the SERVICE_UNAVAILABLE errors raised by the
// layer itself, so operators can tell a dependency outage from starvation.
type RejectionReason string

const (
	// ReasonCircuitOpen means the per-service circuit breaker refused the call.
	ReasonCircuitOpen RejectionReason = "circuit_open"

	// ReasonBackpressure means the process-wide concurrency cap was reached.
	ReasonBackpressure RejectionReason = "backpressure"

	// ReasonDegraded means the current degradation level rejected the call
	// before it reached the target service.
	ReasonDegraded RejectionReason = "degraded"

	// ReasonShutdown means the manager is draining and accepts no new work.
	ReasonShutdown RejectionReason = "shutdown"
)

// Classification is the pure output of Classifier.Classify.
type Classification struct {
	Category  ErrorCategory
	Retryable bool
	Severity  Severity
}

// ClassifiedError is the only error type that crosses the layer boundary.
// It carries a localized title/message/action for the UI, a correlation ID
// for cross-log tracing, and the flags callers need to decide what happens
// next.
type ClassifiedError struct {
	Category      ErrorCategory   `json:"type"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	Action        string          `json:"action"`
	Severity      Severity        `json:"severity"`
	Retryable     bool            `json:"retryable"`
	Reason        RejectionReason `json:"reason,omitempty"`
	Service       string          `json:"service,omitempty"`
	Operation     string          `json:"operation,omitempty"`
	CorrelationID string          `json:"correlationId"`
	Timestamp     time.Time       `json:"timestamp"`
	SupportHint   string          `json:"supportHint,omitempty"`

	// FallbackAttempted records whether a fallback chain ran before this
	// error surfaced. FallbackMessage carries the configured degraded-mode
	// text, if any.
	FallbackAttempted bool   `json:"fallbackAttempted"`
	FallbackMessage   string `json:"fallbackMessage,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Category, e.CorrelationID, e.cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Category, e.CorrelationID, e.Message)
}

// Unwrap exposes the original failure for errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// StatusCode returns the HTTP status the category maps to at the edge.
func (e *ClassifiedError) StatusCode() int {
	return httpStatusFor(e.Category)
}

func httpStatusFor(category ErrorCategory) int {
	switch category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuthFailed, CategoryTokenExpired:
		return http.StatusUnauthorized
	case CategoryPermissionDenied:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryTimeout:
		return http.StatusRequestTimeout
	case CategoryRateLimited:
		return http.StatusTooManyRequests
	case CategoryNetwork:
		return http.StatusBadGateway
	case CategoryServiceUnavailable, CategoryDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
