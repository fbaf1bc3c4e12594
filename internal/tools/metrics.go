package tools

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/evcomx/ragcore/internal/tools"

type metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{}
	// Instrument creation only fails on invalid names; a nil instrument is
	// skipped in record.
	m.duration, _ = meter.Float64Histogram(
		"ragcore.tool.duration",
		metric.WithDescription("Duration of tool executions"),
		metric.WithUnit("s"),
	)
	m.errors, _ = meter.Int64Counter(
		"ragcore.tool.errors",
		metric.WithDescription("Failed tool executions"),
		metric.WithUnit("{error}"),
	)
	return m
}

func (m *metrics) record(ctx context.Context, tool string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
