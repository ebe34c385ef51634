package resilience

import (
	"context"
	"log/slog"
)

// Fallback is one degraded-mode strategy: switch to an alternate backing
// service, serve a cached or locally queued result, or return a
// reduced-feature response. It receives the classified error that exhausted
// the primary path.
type Fallback func(ctx context.Context, cause *ClassifiedError) (any, error)

// FallbackChain tries an ordered list of fallbacks after the primary path is
// exhausted or blocked. The first to succeed supplies the result; if all
// fail, the original classified error is surfaced, decorated with whether a
// fallback was attempted and the configured degraded-mode message.
type FallbackChain struct {
	fallbacks []Fallback
	message   string
	logger    *slog.Logger
}

// NewFallbackChain builds a chain. The list and message are read-only after
// construction.
func NewFallbackChain(fallbacks []Fallback, message string, logger *slog.Logger) *FallbackChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChain{
		fallbacks: fallbacks,
		message:   message,
		logger:    logger,
	}
}

// Run invokes each fallback in order. It returns the first successful result
// or the decorated original error.
func (c *FallbackChain) Run(ctx context.Context, cause *ClassifiedError) (any, error) {
	cause.FallbackAttempted = len(c.fallbacks) > 0
	if c.message != "" {
		cause.FallbackMessage = c.message
	}

	for i, fallback := range c.fallbacks {
		result, err := fallback(ctx, cause)
		if err == nil {
			c.logger.Info("fallback strategy succeeded",
				"service", cause.Service,
				"operation", cause.Operation,
				"strategy", i,
				"correlation_id", cause.CorrelationID)
			return result, nil
		}

		c.logger.Warn("fallback strategy failed",
			"service", cause.Service,
			"strategy", i,
			"error", err)
	}

	return nil, cause
}

type operationContextKey struct{}

func withOperationContext(ctx context.Context, values map[string]any) context.Context {
	if len(values) == 0 {
		return ctx
	}
	return context.WithValue(ctx, operationContextKey{}, values)
}

// OperationContext returns the caller metadata attached via WithContextValue,
// or nil. Fallbacks use it to reach request-scoped data such as the document
// ID to queue for later reconciliation.
func OperationContext(ctx context.Context) map[string]any {
	values, _ := ctx.Value(operationContextKey{}).(map[string]any)
	return values
}
