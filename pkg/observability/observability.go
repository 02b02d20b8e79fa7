// Package observability provides OpenTelemetry tracing and RED metrics for
// the engine and its HTTP surface.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

const instrumentationName = "ecoproof.engine"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g., "localhost:4317" for gRPC
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // How long to wait before sending batched spans
	Enabled        bool
	Insecure       bool // plaintext gRPC to the collector
}

// DefaultConfig returns development defaults. Telemetry is off until enabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "ecoproof",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider owns the SDK trace and metric providers and the engine's RED
// instruments. The zero-export provider returned for a disabled Config has
// nil instruments and every recording method is a no-op.
type Provider struct {
	config *Config
	logger *slog.Logger
	slo    *SLOTracker
	now    func() time.Time

	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	red    *instruments
}

// instruments are the RED (rate, errors, duration) metrics plus an in-flight
// gauge.
type instruments struct {
	calls      metric.Int64Counter
	failures   metric.Int64Counter
	rejections metric.Int64Counter
	latency    metric.Float64Histogram
	inFlight   metric.Int64UpDownCounter
}

// New creates a new observability provider. A disabled provider still
// tracks SLOs but exports nothing.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
		now:    time.Now,
	}
	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	if err := p.install(ctx, res); err != nil {
		return nil, err
	}

	p.tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(config.ServiceVersion))
	if p.red, err = newInstruments(p.meter); err != nil {
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

// WithSLO feeds every tracked operation into t.
func (p *Provider) WithSLO(t *SLOTracker) *Provider {
	p.slo = t
	return p
}

// WithClock overrides clock for testing.
func (p *Provider) WithClock(clock func() time.Time) *Provider {
	p.now = clock
	return p
}

// SLO returns the attached tracker, or nil.
func (p *Provider) SLO() *SLOTracker {
	return p.slo
}

// install creates the OTLP gRPC exporters and registers the SDK providers
// and the W3C propagators globally.
func (p *Provider) install(ctx context.Context, res *resource.Resource) error {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	if p.config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("observability: metric exporter: %w", err)
	}

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler(p.config.SampleRate)),
	)
	p.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(15*time.Second))),
	)

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.calls, err = m.Int64Counter("ecoproof.operations.total",
		metric.WithDescription("Engine operations started"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	if in.failures, err = m.Int64Counter("ecoproof.errors.total",
		metric.WithDescription("Operations that failed for infrastructure reasons"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if in.rejections, err = m.Int64Counter("ecoproof.rejections.total",
		metric.WithDescription("Operations rejected by a business rule, by kind"),
		metric.WithUnit("{rejection}")); err != nil {
		return nil, err
	}
	if in.latency, err = m.Float64Histogram("ecoproof.operation.duration",
		metric.WithDescription("Operation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5)); err != nil {
		return nil, err
	}
	if in.inFlight, err = m.Int64UpDownCounter("ecoproof.operations.active",
		metric.WithDescription("Operations in flight"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, err
	}
	return &in, nil
}

// Shutdown flushes pending spans and metrics. Flush failures are logged,
// not returned, so shutdown of the rest of the process proceeds.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer falls back to the global tracer when the provider is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meter
}

func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

func (p *Provider) RecordRequest(ctx context.Context, attrs ...attribute.KeyValue) {
	if p.red != nil {
		p.red.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordError counts err as a rejection when it carries a kind and as an
// error otherwise.
func (p *Provider) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if p.red == nil {
		return
	}
	if kind := contracts.KindOf(err); kind != "" {
		p.red.rejections.Add(ctx, 1, metric.WithAttributes(append(attrs, AttrErrorKind.String(string(kind)))...))
		return
	}
	p.red.failures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
}

func (p *Provider) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if p.red != nil {
		p.red.latency.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	}
}

// TrackOperation opens a span for name and returns the function that closes
// it. The returned function records duration, classifies err and feeds the
// SLO tracker. Typed rejections count as served calls for the SLO.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := p.now()
	ctx, span := p.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	p.inFlight(ctx, 1, attrs)
	p.RecordRequest(ctx, attrs...)

	return ctx, func(err error) {
		defer span.End()
		elapsed := p.now().Sub(start)
		p.inFlight(ctx, -1, attrs)
		p.RecordDuration(ctx, elapsed, attrs...)
		if err != nil {
			span.RecordError(err)
			p.RecordError(ctx, err, attrs...)
		}
		if p.slo != nil {
			p.slo.Record(SLOObservation{
				Operation: name,
				Latency:   elapsed,
				Success:   err == nil || contracts.KindOf(err) != "",
			})
		}
	}
}

func (p *Provider) inFlight(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if p.red != nil {
		p.red.inFlight.Add(ctx, delta, metric.WithAttributes(attrs...))
	}
}
