package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker tracks the health of one named service and gates execution.
// It wraps a two-step gobreaker configured for exactly one half-open probe:
// after the reset timeout elapses, Allow grants precisely one concurrent
// caller a probe slot and every other caller fails fast, which is the
// safety-critical invariant of the layer.
//
// A breaker lives for the process lifetime; Reset clears its state but never
// removes it.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *slog.Logger

	// mu guards the breaker pointer, which is swapped on Reset.
	mu sync.RWMutex
	cb *gobreaker.TwoStepCircuitBreaker[any]

	// stateMu guards lastStateChange separately: gobreaker invokes
	// OnStateChange while Allow holds mu for reading.
	stateMu         sync.Mutex
	lastStateChange time.Time
}

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// NewCircuitBreaker creates a breaker for the named service. Zero config
// fields fall back to DefaultCircuitBreakerConfig values.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	b := &CircuitBreaker{
		name:   name,
		config: config,
		logger: config.Logger,
	}
	b.cb = b.newBreaker()

	return b
}

func (b *CircuitBreaker) newBreaker() *gobreaker.TwoStepCircuitBreaker[any] {
	return gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1, // exactly one half-open probe
		Interval:    0, // consecutive counts never auto-clear while closed
		Timeout:     b.config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.config.FailureThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.recordStateChange(convertState(from), convertState(to))
		},
	})
}

// Allow asks whether a call may proceed. On success it returns the done
// callback that must be invoked exactly once with the terminal outcome of
// the whole run. When the circuit refuses the call, the returned error wraps
// a typed circuit breaker error carrying the current counts.
func (b *CircuitBreaker) Allow() (func(success bool), error) {
	b.mu.RLock()
	cb := b.cb
	b.mu.RUnlock()

	done, err := cb.Allow()
	if err != nil {
		return nil, b.rejectionCause(err)
	}
	return done, nil
}

// rejectionCause wraps gobreaker's refusal in a typed circuit breaker error.
// ErrTooManyRequests means a half-open probe is already in flight, which the
// layer treats the same as an open circuit.
func (b *CircuitBreaker) rejectionCause(err error) error {
	counts := b.Counts()
	state := "open"
	message := "request rejected"
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		state = "half-open"
		message = "probe already in flight"
	}

	b.logger.Warn("circuit breaker rejected request",
		"service", b.name,
		"state", state,
		"consecutive_failures", counts.ConsecutiveFailures)

	return jperrors.NewCircuitBreakerError(
		message,
		"execute",
		state,
		jperrors.WithCause(err),
		jperrors.WithCounts(jperrors.CircuitCounts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		}),
	)
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return convertState(b.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (b *CircuitBreaker) Counts() CircuitBreakerCounts {
	b.mu.RLock()
	counts := b.cb.Counts()
	b.mu.RUnlock()

	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// LastStateChangeAt returns when the circuit last changed state, or nil if
// it never has.
func (b *CircuitBreaker) LastStateChangeAt() *time.Time {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.lastStateChange.IsZero() {
		return nil
	}
	t := b.lastStateChange
	return &t
}

// Reset forces the circuit to CLOSED with zero counters regardless of its
// current state, by recreating the underlying breaker with the same
// settings. In-flight done callbacks from before the reset land on the old
// instance and are discarded with it.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	from := convertState(b.cb.State())
	b.cb = b.newBreaker()
	b.mu.Unlock()

	b.stateMu.Lock()
	b.lastStateChange = time.Now().UTC()
	b.stateMu.Unlock()

	b.logger.Info("circuit breaker manually reset",
		"service", b.name,
		"from", from,
		"to", StateClosed)

	if b.config.OnStateChange != nil && from != StateClosed {
		b.config.OnStateChange(b.name, from, StateClosed)
	}
}

func (b *CircuitBreaker) recordStateChange(from, to CircuitState) {
	b.stateMu.Lock()
	b.lastStateChange = time.Now().UTC()
	b.stateMu.Unlock()

	b.logger.Warn("circuit breaker state changed",
		"service", b.name,
		"from", from,
		"to", to)

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

// convertState converts gobreaker.State to a CircuitState.
func convertState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// isCircuitRejection reports whether err is a refusal from the breaker
// rather than a failure of the wrapped operation.
func isCircuitRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
