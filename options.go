package resilience

import (
	"log/slog"
	"time"
)

// BackoffStrategy defines the delay pattern between retry attempts.
type BackoffStrategy string

const (
	// BackoffConstant waits the same RetryDelay before every retry. This is
	// the default.
	BackoffConstant BackoffStrategy = "constant"

	// BackoffExponential doubles the delay after each retry, starting at
	// RetryDelay.
	BackoffExponential BackoffStrategy = "exponential"
)

// Priority classifies an operation for degradation-level admission control.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// CircuitBreakerConfig holds per-service circuit breaker parameters.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive terminal failures that
	// opens the circuit.
	// Default: 5
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before a single
	// half-open probe is allowed.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange is called whenever the circuit changes state.
	OnStateChange func(service string, from, to CircuitState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with
// sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// ExecuteOptions controls a single Execute call.
type ExecuteOptions struct {
	// OperationName identifies the logical operation in logs and metrics.
	OperationName string

	// Timeout bounds each individual attempt. A timed-out attempt is
	// classified TIMEOUT; a late result from the underlying call is
	// discarded.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the initial attempt, so a
	// perpetually failing retryable operation runs at most MaxRetries+1
	// times.
	// Default: 2
	MaxRetries uint64

	// RetryDelay is the base delay between attempts.
	// Default: 500ms
	RetryDelay time.Duration

	// Backoff selects the delay pattern.
	// Default: BackoffConstant
	Backoff BackoffStrategy

	// Retryable declares whether the operation may be re-invoked at all.
	// Non-idempotent operations (ledger writes) must set this false; they
	// run exactly once and go straight to the fallback chain on failure.
	// Default: true
	Retryable bool

	// Priority feeds degradation-level admission control.
	// Default: PriorityNormal
	Priority Priority

	// Language selects the user-facing message catalog for classified
	// errors raised by this call.
	Language Language

	// Fallbacks are tried in order after the primary path is exhausted or
	// blocked; the first to succeed supplies the result.
	Fallbacks []Fallback

	// FallbackMessage is the degraded-mode text attached to the surfaced
	// error when every fallback fails.
	FallbackMessage string

	// Context carries opaque caller metadata into fallbacks and logs.
	Context map[string]any
}

// ExecuteOption is a functional option for a single Execute call.
type ExecuteOption func(*ExecuteOptions)

func defaultExecuteOptions(lang Language) ExecuteOptions {
	return ExecuteOptions{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Backoff:    BackoffConstant,
		Retryable:  true,
		Priority:   PriorityNormal,
		Language:   lang,
	}
}

// WithOperationName names the logical operation for logs and metrics.
func WithOperationName(name string) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.OperationName = name
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(timeout time.Duration) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Timeout = timeout
	}
}

// WithMaxRetries sets the number of retries after the initial attempt.
func WithMaxRetries(retries uint64) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.MaxRetries = retries
	}
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(delay time.Duration) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.RetryDelay = delay
	}
}

// WithExponentialRetryBackoff switches from the default constant delay to a
// doubling delay starting at RetryDelay.
func WithExponentialRetryBackoff() ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Backoff = BackoffExponential
	}
}

// NonRetryable marks the operation as non-idempotent: it runs exactly once
// and is never silently re-invoked.
func NonRetryable() ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Retryable = false
	}
}

// WithPriority sets the operation's admission-control priority.
func WithPriority(priority Priority) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Priority = priority
	}
}

// WithLanguage selects the message catalog for errors raised by this call.
func WithLanguage(lang Language) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Language = lang
	}
}

// WithFallback appends a fallback strategy; fallbacks run in the order they
// were added.
func WithFallback(fn Fallback) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Fallbacks = append(o.Fallbacks, fn)
	}
}

// WithFallbackMessage sets the degraded-mode text attached to the surfaced
// error when every fallback fails.
func WithFallbackMessage(message string) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.FallbackMessage = message
	}
}

// WithContextValue attaches opaque caller metadata visible to fallbacks.
func WithContextValue(key string, value any) ExecuteOption {
	return func(o *ExecuteOptions) {
		if o.Context == nil {
			o.Context = make(map[string]any)
		}
		o.Context[key] = value
	}
}

// ServiceConfig holds per-service registration settings.
type ServiceConfig struct {
	Kind           ServiceKind
	CircuitBreaker CircuitBreakerConfig
}

// ServiceOption is a functional option for registering a service.
type ServiceOption func(*ServiceConfig)

// WithKind tags the service's dependency class for diagnostics grouping.
func WithKind(kind ServiceKind) ServiceOption {
	return func(c *ServiceConfig) {
		c.Kind = kind
	}
}

// WithCircuitBreakerConfig overrides the registry's default breaker
// parameters for this service.
func WithCircuitBreakerConfig(cfg CircuitBreakerConfig) ServiceOption {
	return func(c *ServiceConfig) {
		c.CircuitBreaker = cfg
	}
}

// ManagerConfig holds process-wide manager settings.
type ManagerConfig struct {
	// MaxConcurrentOperations caps in-flight Execute calls; further calls
	// are rejected immediately with a backpressure error, never queued.
	// Default: 100
	MaxConcurrentOperations int64

	// DefaultCircuitBreaker is applied to services registered without an
	// explicit breaker config.
	DefaultCircuitBreaker CircuitBreakerConfig

	// DefaultLanguage selects the message catalog when a call doesn't set
	// one.
	// Default: LanguageFrench
	DefaultLanguage Language

	// Logger for manager operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*ManagerConfig)

// DefaultManagerConfig returns manager configuration with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConcurrentOperations: 100,
		DefaultCircuitBreaker:   DefaultCircuitBreakerConfig(),
		DefaultLanguage:         LanguageFrench,
	}
}

// WithMaxConcurrentOperations sets the process-wide concurrency cap.
func WithMaxConcurrentOperations(max int64) ManagerOption {
	return func(c *ManagerConfig) {
		c.MaxConcurrentOperations = max
	}
}

// WithDefaultCircuitBreakerConfig sets breaker parameters for services
// registered without their own.
func WithDefaultCircuitBreakerConfig(cfg CircuitBreakerConfig) ManagerOption {
	return func(c *ManagerConfig) {
		c.DefaultCircuitBreaker = cfg
	}
}

// WithDefaultLanguage sets the default message catalog.
func WithDefaultLanguage(lang Language) ManagerOption {
	return func(c *ManagerConfig) {
		c.DefaultLanguage = lang
	}
}

// WithLogger sets a custom logger for the manager and everything it creates.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *ManagerConfig) {
		c.Logger = logger
	}
}
