package scheduler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meters holds the scheduler instruments. They are registered against the
// global meter provider; without a configured SDK every call is a no-op.
type meters struct {
	jobsAdmitted  metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsCanceled  metric.Int64Counter
	depth         metric.Int64UpDownCounter
}

func newMeters() *meters {
	meter := otel.Meter("scribed/scheduler")

	admitted, _ := meter.Int64Counter("scribed.jobs.admitted",
		metric.WithDescription("Jobs accepted into the queue"))
	completed, _ := meter.Int64Counter("scribed.jobs.completed",
		metric.WithDescription("Jobs finished successfully"))
	failed, _ := meter.Int64Counter("scribed.jobs.failed",
		metric.WithDescription("Jobs finished with an error"))
	canceled, _ := meter.Int64Counter("scribed.jobs.canceled",
		metric.WithDescription("Jobs canceled before completion"))
	depth, _ := meter.Int64UpDownCounter("scribed.queue.depth",
		metric.WithDescription("Jobs waiting for a worker"))

	return &meters{
		jobsAdmitted:  admitted,
		jobsCompleted: completed,
		jobsFailed:    failed,
		jobsCanceled:  canceled,
		depth:         depth,
	}
}

func (m *meters) admitted(ctx context.Context)  { m.jobsAdmitted.Add(ctx, 1) }
func (m *meters) completed(ctx context.Context) { m.jobsCompleted.Add(ctx, 1) }
func (m *meters) canceled(ctx context.Context)  { m.jobsCanceled.Add(ctx, 1) }

func (m *meters) failed(ctx context.Context, code string) {
	m.jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (m *meters) queueDepth(ctx context.Context, delta int64) {
	m.depth.Add(ctx, delta)
}
