package resilience

import "time"

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitState = "closed"

	// StateHalfOpen means the circuit is testing if the service has recovered.
	StateHalfOpen CircuitState = "half-open"

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen CircuitState = "open"
)

// HealthState is the coarse health grade derived from circuit state and
// failure counters.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// ServiceKind tags what class of dependency a registered service is. It only
// affects diagnostics grouping (the network-health view), never execution.
type ServiceKind string

const (
	KindGeneric  ServiceKind = "generic"
	KindAI       ServiceKind = "ai"
	KindLedger   ServiceKind = "ledger"
	KindDatabase ServiceKind = "database"
	KindStorage  ServiceKind = "storage"
)

// Outcome is the terminal result of one Execute call.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRetriedSuccess Outcome = "retried-success"
	OutcomeFallback       Outcome = "fallback"
	OutcomeFailure        Outcome = "failure"
)

// ServiceHealthStatus is a point-in-time snapshot of one service's health,
// safe to serialize to JSON.
type ServiceHealthStatus struct {
	Service             string       `json:"service"`
	Kind                ServiceKind  `json:"kind"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures uint32       `json:"consecutive_failures"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
	LastStateChangeAt   *time.Time   `json:"last_state_change_at,omitempty"`
	Status              HealthState  `json:"status"`
}

// DegradationLevel is the system-wide admission-control posture.
type DegradationLevel string

const (
	DegradationNone     DegradationLevel = "none"
	DegradationLight    DegradationLevel = "light"
	DegradationModerate DegradationLevel = "moderate"
	DegradationSevere   DegradationLevel = "severe"
)

// SystemHealth aggregates every registered service plus the manager's
// admission-control state. Recomputed on demand, never cached.
type SystemHealth struct {
	Services                map[string]ServiceHealthStatus `json:"services"`
	HealthPercentage        float64                        `json:"health_percentage"`
	ActiveOperations        int64                          `json:"active_operations"`
	MaxConcurrentOperations int64                          `json:"max_concurrent_operations"`
	DegradationLevel        DegradationLevel               `json:"degradation_level"`
}

// deriveHealth grades a service: healthy iff closed with zero consecutive
// failures, degraded while closed-with-failures or half-open, unhealthy when
// open.
func deriveHealth(state CircuitState, consecutiveFailures uint32) HealthState {
	switch state {
	case StateOpen:
		return HealthUnhealthy
	case StateHalfOpen:
		return HealthDegraded
	default:
		if consecutiveFailures > 0 {
			return HealthDegraded
		}
		return HealthHealthy
	}
}
