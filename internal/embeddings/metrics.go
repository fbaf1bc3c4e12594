package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/evcomx/ragcore/internal/embeddings"

// Metrics holds embedding instruments. Instruments that fail to register
// are left nil and skipped.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	fallbacks metric.Int64Counter
	cacheHits metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.duration, err = meter.Float64Histogram(
		"ragcore.embedding.duration_seconds",
		metric.WithDescription("Embedding provider latency by provider and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = meter.Int64Histogram(
		"ragcore.embedding.batch_size",
		metric.WithDescription("Texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"ragcore.embedding.errors_total",
		metric.WithDescription("Embedding provider failures, including timeouts"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.fallbacks, err = meter.Int64Counter(
		"ragcore.embedding.fallbacks_total",
		metric.WithDescription("Texts embedded by the local strategy after a provider failure"),
		metric.WithUnit("{text}"),
	)
	if err != nil {
		logger.Warn("failed to create fallback counter", zap.Error(err))
	}

	m.cacheHits, err = meter.Int64Counter(
		"ragcore.embedding.cache_hits_total",
		metric.WithDescription("Query embeddings served from the LRU cache"),
	)
	if err != nil {
		logger.Warn("failed to create cache hit counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one provider call.
func (m *Metrics) RecordGeneration(ctx context.Context, provider, op string, d time.Duration, batch int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", op),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.batchSize != nil && batch > 0 {
		m.batchSize.Record(ctx, int64(batch), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordFallback counts n texts served by the local strategy.
func (m *Metrics) RecordFallback(ctx context.Context, provider string, n int) {
	if m.fallbacks != nil {
		m.fallbacks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("provider", provider)))
	}
}

// RecordCacheHit counts one cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m.cacheHits != nil {
		m.cacheHits.Add(ctx, 1)
	}
}
