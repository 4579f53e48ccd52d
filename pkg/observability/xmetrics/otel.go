package xmetrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultInstrumentationName = "github.com/leftonspace/CampoTech-sub005/xmetrics"
	unknownComponent           = "unknown"
	unknownOperation           = "unknown"

	metricOperationTotal    = "campotech.gateway.operation.total"
	metricOperationDuration = "campotech.gateway.operation.duration"
)

type otelConfig struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
}

// Option configures the OTel Observer.
type Option func(*otelConfig)

// WithInstrumentationName overrides the instrumentation name.
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithMeterProvider overrides the MeterProvider (defaults to the global).
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// NewOTelObserver builds an Observer backed by OpenTelemetry metrics:
// a counter of finished operations and a duration histogram, both labeled
// with component, operation and status.
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(cfg.instrumentationName)

	total, err := meter.Int64Counter(
		metricOperationTotal,
		metric.WithDescription("Total finished gateway operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		metricOperationDuration,
		metric.WithDescription("Gateway operation duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create histogram: %w", err)
	}

	return &otelObserver{total: total, duration: duration}, nil
}

type otelObserver struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	component := opts.Component
	if component == "" {
		component = unknownComponent
	}
	operation := opts.Operation
	if operation == "" {
		operation = unknownOperation
	}
	return ctx, &otelSpan{
		observer:  o,
		ctx:       ctx,
		component: component,
		operation: operation,
		attrs:     opts.Attrs,
		start:     time.Now(),
	}
}

type otelSpan struct {
	observer  *otelObserver
	ctx       context.Context
	component string
	operation string
	attrs     []Attr
	start     time.Time
}

func (s *otelSpan) End(result Result) {
	status := result.Status
	if status == "" {
		if result.Err != nil {
			status = StatusError
		} else {
			status = StatusOK
		}
	}

	kvs := make([]attribute.KeyValue, 0, 3+len(s.attrs)+len(result.Attrs))
	kvs = append(kvs,
		attribute.String("component", s.component),
		attribute.String("operation", s.operation),
		attribute.String("status", string(status)),
	)
	kvs = appendAttrs(kvs, s.attrs)
	kvs = appendAttrs(kvs, result.Attrs)

	set := metric.WithAttributeSet(attribute.NewSet(kvs...))
	elapsed := float64(time.Since(s.start).Microseconds()) / 1000.0

	s.observer.total.Add(s.ctx, 1, set)
	s.observer.duration.Record(s.ctx, elapsed, set)
}

func appendAttrs(kvs []attribute.KeyValue, attrs []Attr) []attribute.KeyValue {
	for _, a := range attrs {
		if a.Key == "" {
			continue
		}
		switch v := a.Value.(type) {
		case string:
			kvs = append(kvs, attribute.String(a.Key, v))
		case int:
			kvs = append(kvs, attribute.Int(a.Key, v))
		case int64:
			kvs = append(kvs, attribute.Int64(a.Key, v))
		case float64:
			kvs = append(kvs, attribute.Float64(a.Key, v))
		case bool:
			kvs = append(kvs, attribute.Bool(a.Key, v))
		default:
			kvs = append(kvs, attribute.String(a.Key, fmt.Sprint(v)))
		}
	}
	return kvs
}
