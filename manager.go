package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Manager is the process-wide entry point of the resilience layer. It owns
// the service health registry, enforces the concurrency cap, applies the
// degradation-level admission policy, and drives every Execute call through
// the per-service retry/circuit/fallback pipeline.
//
// One Manager per process; it lives from startup to Shutdown.
type Manager struct {
	config     ManagerConfig
	logger     *slog.Logger
	classifier *Classifier
	registry   *ServiceHealthRegistry
	executor   *retryExecutor
	metrics    *instruments

	// sem gates admission; active is the reported in-flight gauge. Both are
	// touched on every exit path so the counter can never leak.
	sem    *semaphore.Weighted
	active atomic.Int64

	degradation  atomic.Value // DegradationLevel
	shuttingDown atomic.Bool
}

// NewManager creates a Manager with the given options.
func NewManager(opts ...ManagerOption) *Manager {
	config := DefaultManagerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentOperations <= 0 {
		config.MaxConcurrentOperations = DefaultManagerConfig().MaxConcurrentOperations
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = LanguageFrench
	}

	classifier := NewClassifier()
	m := &Manager{
		config:     config,
		logger:     config.Logger,
		classifier: classifier,
		registry:   NewServiceHealthRegistry(config.DefaultCircuitBreaker, config.Logger),
		executor:   newRetryExecutor(classifier, config.Logger),
		metrics:    newInstruments(),
		sem:        semaphore.NewWeighted(config.MaxConcurrentOperations),
	}
	m.degradation.Store(DegradationNone)
	return m
}

// Registry exposes the health registry for the ops API.
func (m *Manager) Registry() *ServiceHealthRegistry {
	return m.registry
}

// RegisterService declares a service ahead of first use, optionally with its
// own breaker parameters and dependency kind. Execute registers unknown
// names on the fly with defaults.
func (m *Manager) RegisterService(name string, opts ...ServiceOption) {
	m.registry.Register(name, opts...)
}

// Execute runs an operation against the named service with admission
// control, bounded retries, circuit breaking, and fallbacks. It is fail-fast:
// when the concurrency cap is reached or the degradation policy rejects the
// call, it returns immediately and never queues.
func (m *Manager) Execute(ctx context.Context, service string, op Operation, opts ...ExecuteOption) (any, error) {
	options := defaultExecuteOptions(m.config.DefaultLanguage)
	for _, opt := range opts {
		opt(&options)
	}

	if m.shuttingDown.Load() {
		return nil, m.reject(ctx, service, options, ReasonShutdown)
	}

	level := m.DegradationLevel()
	if degradationRejects(level, options.Priority) {
		return nil, m.reject(ctx, service, options, ReasonDegraded)
	}
	if level == DegradationLight {
		m.logger.Info("admitting operation under light degradation",
			"service", service,
			"operation", options.OperationName,
			"priority", options.Priority)
	}

	if !m.sem.TryAcquire(1) {
		return nil, m.reject(ctx, service, options, ReasonBackpressure)
	}
	m.active.Add(1)
	started := time.Now()
	defer func() {
		m.active.Add(-1)
		m.sem.Release(1)
	}()

	breaker := m.registry.breakerFor(service)
	runCtx := withOperationContext(ctx, options.Context)
	result, attempts, err := m.executor.run(runCtx, service, breaker, op, options)

	inv := OperationInvocation{
		ServiceName:   service,
		OperationName: options.OperationName,
		StartedAt:     started,
		Retryable:     options.Retryable,
		Timeout:       options.Timeout,
		Attempts:      attempts,
	}

	if err == nil {
		inv.Outcome = OutcomeSuccess
		if attempts > 1 {
			inv.Outcome = OutcomeRetriedSuccess
		}
		m.registry.RecordOutcome(inv, nil)
		m.metrics.recordOutcome(ctx, service, inv.Outcome, time.Since(started))
		return result, nil
	}

	classified := m.classifier.NewError(err, options.Language, service, options.OperationName)
	inv.ErrorCategory = classified.Category

	chain := NewFallbackChain(options.Fallbacks, options.FallbackMessage, m.logger)
	fallbackResult, fallbackErr := chain.Run(runCtx, classified)
	if fallbackErr == nil {
		inv.Outcome = OutcomeFallback
		m.registry.RecordOutcome(inv, classified)
		m.metrics.recordOutcome(ctx, service, OutcomeFallback, time.Since(started))
		return fallbackResult, nil
	}

	inv.Outcome = OutcomeFailure
	m.registry.RecordOutcome(inv, classified)
	m.metrics.recordOutcome(ctx, service, OutcomeFailure, time.Since(started))

	m.logger.Warn("operation failed",
		"service", service,
		"operation", options.OperationName,
		"category", classified.Category,
		"severity", classified.Severity,
		"attempts", attempts,
		"fallback_attempted", classified.FallbackAttempted,
		"correlation_id", classified.CorrelationID)

	return nil, fallbackErr
}

func (m *Manager) reject(ctx context.Context, service string, options ExecuteOptions, reason RejectionReason) error {
	m.metrics.recordRejection(ctx, service, reason)
	m.logger.Warn("operation rejected",
		"service", service,
		"operation", options.OperationName,
		"reason", reason,
		"active_operations", m.active.Load(),
		"max_concurrent_operations", m.config.MaxConcurrentOperations)
	return m.classifier.NewRejection(reason, nil, options.Language, service, options.OperationName)
}

// degradationRejects applies the admission policy for the current level:
// severe rejects everything but critical priority, moderate sheds low
// priority, light admits everything.
func degradationRejects(level DegradationLevel, priority Priority) bool {
	switch level {
	case DegradationSevere:
		return priority != PriorityCritical
	case DegradationModerate:
		return priority == PriorityLow
	default:
		return false
	}
}

// GetSystemHealth recomputes the aggregate snapshot on demand.
func (m *Manager) GetSystemHealth() SystemHealth {
	services := m.registry.Snapshot()

	healthy := 0
	for _, s := range services {
		if s.Status == HealthHealthy {
			healthy++
		}
	}
	percentage := 100.0
	if len(services) > 0 {
		percentage = 100 * float64(healthy) / float64(len(services))
	}

	return SystemHealth{
		Services:                services,
		HealthPercentage:        percentage,
		ActiveOperations:        m.active.Load(),
		MaxConcurrentOperations: m.config.MaxConcurrentOperations,
		DegradationLevel:        m.DegradationLevel(),
	}
}

// DegradationLevel returns the current admission-control posture.
func (m *Manager) DegradationLevel() DegradationLevel {
	return m.degradation.Load().(DegradationLevel)
}

// HandleSystemDegradation moves the system to an explicit degradation level.
// Re-applying the current level is a no-op. This and RecoverFromDegradation
// are the only ways the level changes; an operator or an external
// health-evaluation loop decides when to call them.
func (m *Manager) HandleSystemDegradation(level DegradationLevel) error {
	switch level {
	case DegradationLight, DegradationModerate, DegradationSevere:
	default:
		return fmt.Errorf("invalid degradation level %q", level)
	}

	current := m.DegradationLevel()
	if current == level {
		return nil
	}

	m.degradation.Store(level)
	m.logger.Warn("system degradation level changed",
		"from", current,
		"to", level)
	return nil
}

// RecoverFromDegradation restores normal admission.
func (m *Manager) RecoverFromDegradation() {
	current := m.DegradationLevel()
	if current == DegradationNone {
		return
	}

	m.degradation.Store(DegradationNone)
	m.logger.Info("system degradation cleared", "from", current)
}

// ResetCircuitBreaker forces the named service's circuit to CLOSED. The
// caller is responsible for admin authorization.
func (m *Manager) ResetCircuitBreaker(name string) error {
	return m.registry.ResetCircuitBreaker(name)
}

// Shutdown rejects new work and drains active operations to zero. If the
// context is cancelled first, it returns with operations still in flight;
// their deferred releases still run, but no further waiting happens.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}

	m.logger.Info("resilience manager shutting down",
		"active_operations", m.active.Load())

	if err := m.sem.Acquire(ctx, m.config.MaxConcurrentOperations); err != nil {
		return fmt.Errorf("shutdown interrupted with %d operations in flight: %w", m.active.Load(), err)
	}
	m.sem.Release(m.config.MaxConcurrentOperations)
	return nil
}
