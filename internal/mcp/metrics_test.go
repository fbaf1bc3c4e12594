package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/evcomx/ragcore/internal/memory"
	"github.com/evcomx/ragcore/internal/tools"
	"github.com/evcomx/ragcore/internal/validation"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordInvocation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)
	ctx := context.Background()

	m.RecordInvocation(ctx, "calculate", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "calculate", 50*time.Millisecond, validation.New("expression", "is empty"))

	got := collect(t, reader)
	require.Contains(t, got, "ragcore.mcp.tool.invocations")
	require.Contains(t, got, "ragcore.mcp.tool.duration")
	require.Contains(t, got, "ragcore.mcp.tool.errors")
	assert.Equal(t, int64(2), sumInt64(t, got["ragcore.mcp.tool.invocations"]))
	assert.Equal(t, int64(1), sumInt64(t, got["ragcore.mcp.tool.errors"]))
}

func TestMetrics_TrackBalancesActive(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)
	ctx := context.Background()

	done := m.track(ctx, "reason")
	assert.Equal(t, int64(1), sumInt64(t, collect(t, reader)["ragcore.mcp.tool.active_requests"]))
	done(nil)
	assert.Equal(t, int64(0), sumInt64(t, collect(t, reader)["ragcore.mcp.tool.active_requests"]))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", validation.New("tenant_id", "is required"), "validation_error"},
		{"wrapped validation", &tools.ExecutionError{Tool: "calculate", Err: validation.New("expression", "division by zero")}, "validation_error"},
		{"unknown tool", fmt.Errorf("%w: nope", tools.ErrUnknownTool), "not_found"},
		{"missing memory", fmt.Errorf("get: %w", memory.ErrNotFound), "not_found"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"tool", &tools.ExecutionError{Tool: "web_search", Err: errors.New("boom")}, "tool_error"},
		{"other", errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeError(tt.err))
		})
	}
}
