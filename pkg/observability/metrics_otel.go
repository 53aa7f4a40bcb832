package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelInstruments are the analytics instruments exported over OTLP
type OTelInstruments struct {
	computations        metric.Int64Counter
	computationDuration metric.Float64Histogram
	cacheLookups        metric.Int64Counter
}

// NewOTelInstruments creates the instruments on the global meter provider
func NewOTelInstruments() (*OTelInstruments, error) {
	return newOTelInstruments(otel.Meter("github.com/queuekit/queue-analytics"))
}

func newOTelInstruments(meter metric.Meter) (*OTelInstruments, error) {
	m := &OTelInstruments{}
	var err error

	m.computations, err = meter.Int64Counter(
		"queue_analytics.computations",
		metric.WithDescription("Analytics aggregates computed from raw queue records"),
		metric.WithUnit("{computation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create computations counter: %w", err)
	}

	m.computationDuration, err = meter.Float64Histogram(
		"queue_analytics.computation.duration",
		metric.WithDescription("Aggregate computation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create computation duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"queue_analytics.cache.lookups",
		metric.WithDescription("Analytics cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return m, nil
}

func (m *OTelInstruments) recordComputation(aggregate string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("aggregate", aggregate),
		attribute.String("status", statusLabel(err)),
	)
	ctx := context.Background()
	m.computations.Add(ctx, 1, attrs)
	m.computationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *OTelInstruments) recordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache.type", cacheType),
		attribute.String("result", result),
	))
}
