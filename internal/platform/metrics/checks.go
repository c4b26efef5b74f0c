package metrics

import (
	"context"

	"envcheck/internal/platform/health"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckMetrics records one data point per executed or skipped check.
// Check names are a small fixed set, so they are safe as attributes.
type CheckMetrics struct {
	service string

	runs     metric.Int64Counter
	failures metric.Int64Counter
	skipped  metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewCheckMetrics(service string) (*CheckMetrics, error) {
	m := otel.Meter("envcheck/" + service)

	runs, err := m.Int64Counter(
		"envcheck.check.runs",
		metric.WithDescription("Checks executed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := m.Int64Counter(
		"envcheck.check.failures",
		metric.WithDescription("Checks that returned an error"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}
	skipped, err := m.Int64Counter(
		"envcheck.check.skipped",
		metric.WithDescription("Checks not run because a prerequisite failed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := m.Float64Histogram(
		"envcheck.check.duration",
		metric.WithDescription("Check duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &CheckMetrics{
		service:  service,
		runs:     runs,
		failures: failures,
		skipped:  skipped,
		latency:  latency,
	}, nil
}

// Record is nil-safe so callers can run without metrics.
func (c *CheckMetrics) Record(ctx context.Context, r health.Result) {
	if c == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("service.name", c.service),
		attribute.String("check", r.Name),
	)
	if r.Skipped {
		c.skipped.Add(ctx, 1, attrs)
		return
	}
	c.runs.Add(ctx, 1, attrs)
	c.latency.Record(ctx, r.Duration.Seconds(), attrs)
	if !r.Healthy {
		c.failures.Add(ctx, 1, attrs)
	}
}
