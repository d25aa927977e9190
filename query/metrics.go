package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/adeilh/aura/query"

type metrics struct {
	fetches      metric.Int64Counter
	failures     metric.Int64Counter
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	decodeErrors metric.Int64Counter
	duration     metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.fetches, err = meter.Int64Counter("query.fetches",
		metric.WithDescription("Fetches issued by cached queries"),
		metric.WithUnit("{fetch}")); err != nil {
		return nil, err
	}
	if m.failures, err = meter.Int64Counter("query.fetch.failures",
		metric.WithDescription("Fetches that returned an error"),
		metric.WithUnit("{fetch}")); err != nil {
		return nil, err
	}
	if m.hits, err = meter.Int64Counter("query.cache.hits",
		metric.WithDescription("Persisted reads that produced a value"),
		metric.WithUnit("{read}")); err != nil {
		return nil, err
	}
	if m.misses, err = meter.Int64Counter("query.cache.misses",
		metric.WithDescription("Persisted reads that found nothing usable"),
		metric.WithUnit("{read}")); err != nil {
		return nil, err
	}
	if m.decodeErrors, err = meter.Int64Counter("query.cache.decode_errors",
		metric.WithDescription("Persisted values that failed to decode"),
		metric.WithUnit("{read}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("query.fetch.duration",
		metric.WithDescription("Fetch latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordFetch(ctx context.Context, key string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("query.key", family(key)))
	m.fetches.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

func (m *metrics) recordRead(ctx context.Context, key string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("query.key", family(key)))
	if hit {
		m.hits.Add(ctx, 1, attrs)
		return
	}
	m.misses.Add(ctx, 1, attrs)
}

func (m *metrics) recordDecodeError(ctx context.Context, key string) {
	m.decodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("query.key", family(key))))
}
