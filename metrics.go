package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the OpenTelemetry instruments the manager reports into.
// They resolve against the global meter provider, so without an SDK
// configured in the host process they are no-ops.
type instruments struct {
	operations metric.Int64Counter
	rejections metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter("jurachain/resilience")

	operations, _ := meter.Int64Counter("resilience.operations",
		metric.WithDescription("Terminal outcomes of resilient executions"))
	rejections, _ := meter.Int64Counter("resilience.rejections",
		metric.WithDescription("Admission-control rejections by reason"))
	duration, _ := meter.Float64Histogram("resilience.operation.duration",
		metric.WithDescription("End-to-end execution duration"),
		metric.WithUnit("ms"))

	return &instruments{
		operations: operations,
		rejections: rejections,
		duration:   duration,
	}
}

func (i *instruments) recordOutcome(ctx context.Context, service string, outcome Outcome, elapsed time.Duration) {
	i.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", string(outcome)),
	))
	i.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("service", service),
	))
}

func (i *instruments) recordRejection(ctx context.Context, service string, reason RejectionReason) {
	i.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("reason", string(reason)),
	))
}
