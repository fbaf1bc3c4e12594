package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/evcomx/ragcore/internal/logging"
)

// flusher is the lifecycle shared by the SDK providers.
type flusher interface {
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type namedFlusher struct {
	name string
	flusher
}

// Telemetry owns the tracer, meter and logger providers. An exporter that fails to
// start leaves the global no-op provider for that signal in place.
type Telemetry struct {
	config *Config
	logger *logging.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	providers      []namedFlusher

	stopped  atomic.Bool
	degraded atomic.Bool
}

// New validates cfg and, when enabled, installs global providers and the
// W3C trace-context propagator. Loggers built earlier on
// global.GetLoggerProvider start exporting once the logger provider is set.
func New(ctx context.Context, cfg *Config, logger *logging.Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Telemetry{config: cfg, logger: logger.Named("telemetry")}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.markDegraded(ctx, "traces", err)
	} else {
		t.useTracerProvider(tp)
		otel.SetTracerProvider(tp)
	}
	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.markDegraded(ctx, "metrics", err)
	} else if mp != nil {
		t.useMeterProvider(mp)
		otel.SetMeterProvider(mp)
	}
	if lp, err := newLoggerProvider(ctx, cfg, res); err != nil {
		t.markDegraded(ctx, "logs", err)
	} else if lp != nil {
		t.useLoggerProvider(lp)
		global.SetLoggerProvider(lp)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.logger.Info(ctx, "telemetry enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Bool("degraded", t.degraded.Load()),
	)
	return t, nil
}

func (t *Telemetry) useTracerProvider(tp *trace.TracerProvider) {
	t.tracerProvider = tp
	t.providers = append(t.providers, namedFlusher{"traces", tp})
}

func (t *Telemetry) useMeterProvider(mp *sdkmetric.MeterProvider) {
	t.meterProvider = mp
	t.providers = append(t.providers, namedFlusher{"metrics", mp})
}

func (t *Telemetry) useLoggerProvider(lp *sdklog.LoggerProvider) {
	t.loggerProvider = lp
	t.providers = append(t.providers, namedFlusher{"logs", lp})
}

// LoggerProvider returns the owned provider, or the global one.
func (t *Telemetry) LoggerProvider() otellog.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return global.GetLoggerProvider()
	}
	return t.loggerProvider
}

// Tracer returns a tracer from the owned provider, or the global one.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter from the owned provider, or the global one.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// ForceFlush exports pending spans, metrics and log records now.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.each(func(p namedFlusher) error { return p.ForceFlush(ctx) })
}

// Shutdown flushes and stops every provider. Without a deadline on ctx
// shutdown.timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config.Shutdown.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout)
		defer cancel()
	}
	t.stopped.Store(true)
	return t.each(func(p namedFlusher) error { return p.Shutdown(ctx) })
}

func (t *Telemetry) each(fn func(namedFlusher) error) error {
	var errs []error
	for _, p := range t.providers {
		if err := fn(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}

// HealthStatus reports provider state.
type HealthStatus struct {
	Healthy  bool `json:"healthy"`
	Degraded bool `json:"degraded"`
}

// Health returns the current status. A nil Telemetry is degraded.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	return HealthStatus{Healthy: !t.stopped.Load(), Degraded: t.degraded.Load()}
}

// IsEnabled reports whether telemetry is enabled and not shut down.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.config.Enabled && !t.stopped.Load()
}

func (t *Telemetry) markDegraded(ctx context.Context, signal string, err error) {
	t.degraded.Store(true)
	t.logger.Warn(ctx, "telemetry exporter unavailable, using no-op provider",
		zap.String("signal", signal),
		zap.Error(err),
	)
}
