package readiness

import (
	"context"
	"time"

	"jobworker/internal/engine"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// metrics holds the readiness instruments.
type metrics struct {
	queries      metric.Int64Counter
	outcomes     metric.Int64Counter
	durationHist metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	var err error

	m.queries, err = meter.Int64Counter(
		"readiness.queries",
		metric.WithDescription("Engine status queries issued by readiness checks"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		otel.Handle(err)
		m.queries = noop.Int64Counter{}
	}

	m.outcomes, err = meter.Int64Counter(
		"readiness.outcomes",
		metric.WithDescription("Container readiness evaluations by outcome"),
		metric.WithUnit("{container}"),
	)
	if err != nil {
		otel.Handle(err)
		m.outcomes = noop.Int64Counter{}
	}

	m.durationHist, err = meter.Float64Histogram(
		"readiness.duration_ms",
		metric.WithDescription("Container readiness evaluation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
		m.durationHist = noop.Float64Histogram{}
	}

	return m
}

func (m *metrics) recordQuery(ctx context.Context, q engine.Query) {
	m.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("query", q.Name())))
}

func (m *metrics) recordOutcome(ctx context.Context, outcome string, d time.Duration) {
	opt := metric.WithAttributes(attribute.String("outcome", outcome))
	m.outcomes.Add(ctx, 1, opt)
	m.durationHist.Record(ctx, float64(d.Microseconds())/1000.0, opt)
}
