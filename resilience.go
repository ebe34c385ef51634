// Package resilience wraps every call the JuraChain platform makes to an
// unreliable external dependency — AI inference endpoints, ledger
// transactions, database queries — behind per-service circuit breakers,
// bounded retries with backoff, ordered fallback chains, and a process-wide
// admission controller with health aggregation and degradation levels.
//
// All state is per-process. The layer never guarantees exactly-once
// execution of a wrapped operation, only bounded-retry-with-classification;
// non-idempotent operations must be declared NonRetryable and are never
// silently re-invoked.
package resilience

import (
	"context"
	"fmt"
)

// Operation is a single call against an external dependency. The context
// bounds the attempt; on timeout the result, if it ever arrives, is
// discarded.
type Operation func(ctx context.Context) (any, error)

// Execute runs a typed operation through the manager. It is a thin generic
// shim over Manager.Execute for callers that want a concrete result type.
func Execute[T any](ctx context.Context, m *Manager, service string, op func(ctx context.Context) (T, error), opts ...ExecuteOption) (T, error) {
	var zero T

	result, err := m.Execute(ctx, service, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	value, ok := result.(T)
	if !ok {
		// A fallback supplied a value of the wrong type.
		return zero, fmt.Errorf("resilience: %s returned %T, want %T", service, result, zero)
	}
	return value, nil
}
