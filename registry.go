package resilience

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// OperationInvocation is the ephemeral record of one Execute call, fed into
// the registry after the call completes. It is never persisted.
type OperationInvocation struct {
	ServiceName   string
	OperationName string
	StartedAt     time.Time
	Retryable     bool
	Timeout       time.Duration
	Attempts      int
	Outcome       Outcome
	ErrorCategory ErrorCategory // set when Outcome is fallback or failure
}

// ServiceErrorStats summarizes the failures recorded for one service. Serves
// the read-only error-stats diagnostics; not part of admission control.
type ServiceErrorStats struct {
	Service     string                  `json:"service"`
	Outcomes    map[Outcome]int64       `json:"outcomes"`
	Categories  map[ErrorCategory]int64 `json:"categories,omitempty"`
	LastError   string                  `json:"last_error,omitempty"`
	LastErrorAt *time.Time              `json:"last_error_at,omitempty"`
}

// ServiceHealthRegistry is the process-wide map of service name to health,
// updated by every execution outcome. It is the single source of truth
// consumed by the Manager and the ops API. Pure bookkeeping: it never
// performs I/O.
//
// Entries are created at first use and live for the process lifetime; reset
// clears a breaker's state but never removes the entry.
type ServiceHealthRegistry struct {
	defaultBreaker CircuitBreakerConfig
	logger         *slog.Logger

	mu      sync.RWMutex
	entries map[string]*serviceEntry
}

type serviceEntry struct {
	name    string
	kind    ServiceKind
	breaker *CircuitBreaker

	mu            sync.Mutex
	lastFailureAt time.Time
	outcomes      map[Outcome]int64
	categories    map[ErrorCategory]int64
	lastError     string
	lastErrorAt   time.Time
}

// NewServiceHealthRegistry creates an empty registry. Services registered
// without their own breaker config inherit defaultBreaker.
func NewServiceHealthRegistry(defaultBreaker CircuitBreakerConfig, logger *slog.Logger) *ServiceHealthRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceHealthRegistry{
		defaultBreaker: defaultBreaker,
		logger:         logger,
		entries:        make(map[string]*serviceEntry),
	}
}

// Register creates the entry for a service name. Registering an existing
// name is a no-op; the original entry and its breaker state survive.
func (r *ServiceHealthRegistry) Register(name string, opts ...ServiceOption) {
	config := ServiceConfig{
		Kind:           KindGeneric,
		CircuitBreaker: r.defaultBreaker,
	}
	for _, opt := range opts {
		opt(&config)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return
	}

	r.entries[name] = newServiceEntry(name, config, r.logger)
	r.logger.Info("registered service", "service", name, "kind", config.Kind)
}

func newServiceEntry(name string, config ServiceConfig, logger *slog.Logger) *serviceEntry {
	cbConfig := config.CircuitBreaker
	if cbConfig.Logger == nil {
		cbConfig.Logger = logger
	}
	return &serviceEntry{
		name:       name,
		kind:       config.Kind,
		breaker:    NewCircuitBreaker(name, cbConfig),
		outcomes:   make(map[Outcome]int64),
		categories: make(map[ErrorCategory]int64),
	}
}

// entry returns the service entry, creating it with defaults on first use.
func (r *ServiceHealthRegistry) entry(name string) *serviceEntry {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok = r.entries[name]; ok {
		return e
	}
	e = newServiceEntry(name, ServiceConfig{Kind: KindGeneric, CircuitBreaker: r.defaultBreaker}, r.logger)
	r.entries[name] = e
	return e
}

// RecordOutcome folds one completed invocation into the service's counters.
func (r *ServiceHealthRegistry) RecordOutcome(inv OperationInvocation, err error) {
	e := r.entry(inv.ServiceName)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.outcomes[inv.Outcome]++
	if inv.Outcome == OutcomeFailure || inv.Outcome == OutcomeFallback {
		now := time.Now().UTC()
		e.lastFailureAt = now
		if inv.ErrorCategory != "" {
			e.categories[inv.ErrorCategory]++
		}
		if err != nil {
			e.lastError = err.Error()
			e.lastErrorAt = now
		}
	}
}

// HealthStatus returns the current snapshot for one service.
func (r *ServiceHealthRegistry) HealthStatus(name string) (ServiceHealthStatus, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return ServiceHealthStatus{}, fmt.Errorf("service %q is not registered", name)
	}
	return e.healthStatus(), nil
}

func (e *serviceEntry) healthStatus() ServiceHealthStatus {
	state := e.breaker.State()
	counts := e.breaker.Counts()

	e.mu.Lock()
	var lastFailure *time.Time
	if !e.lastFailureAt.IsZero() {
		t := e.lastFailureAt
		lastFailure = &t
	}
	e.mu.Unlock()

	return ServiceHealthStatus{
		Service:             e.name,
		Kind:                e.kind,
		State:               state,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		LastFailureAt:       lastFailure,
		LastStateChangeAt:   e.breaker.LastStateChangeAt(),
		Status:              deriveHealth(state, counts.ConsecutiveFailures),
	}
}

// ListServices returns the registered service names, sorted.
func (r *ServiceHealthRegistry) ListServices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the health of every registered service.
func (r *ServiceHealthRegistry) Snapshot() map[string]ServiceHealthStatus {
	r.mu.RLock()
	entries := make([]*serviceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	services := make(map[string]ServiceHealthStatus, len(entries))
	for _, e := range entries {
		services[e.name] = e.healthStatus()
	}
	return services
}

// ErrorStats returns the per-service failure counters.
func (r *ServiceHealthRegistry) ErrorStats() map[string]ServiceErrorStats {
	r.mu.RLock()
	entries := make([]*serviceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stats := make(map[string]ServiceErrorStats, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := ServiceErrorStats{
			Service:    e.name,
			Outcomes:   make(map[Outcome]int64, len(e.outcomes)),
			Categories: make(map[ErrorCategory]int64, len(e.categories)),
			LastError:  e.lastError,
		}
		for k, v := range e.outcomes {
			s.Outcomes[k] = v
		}
		for k, v := range e.categories {
			s.Categories[k] = v
		}
		if !e.lastErrorAt.IsZero() {
			t := e.lastErrorAt
			s.LastErrorAt = &t
		}
		e.mu.Unlock()
		stats[e.name] = s
	}
	return stats
}

// ResetCircuitBreaker forces the named service's circuit to CLOSED. The
// admin-facing reset endpoint lands here; authorization is the caller's
// responsibility.
func (r *ServiceHealthRegistry) ResetCircuitBreaker(name string) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("service %q is not registered", name)
	}

	e.breaker.Reset()
	return nil
}

// breakerFor exposes the entry's breaker to the manager.
func (r *ServiceHealthRegistry) breakerFor(name string) *CircuitBreaker {
	return r.entry(name).breaker
}

// kindFor reports the registered dependency class for diagnostics grouping.
func (r *ServiceHealthRegistry) kindFor(name string) ServiceKind {
	return r.entry(name).kind
}
