package xmetrics

import (
	"context"
)

// Status is the outcome of an observed operation.
type Status string

const (
	// StatusOK marks a successful operation.
	StatusOK Status = "ok"
	// StatusError marks a failed operation.
	StatusError Status = "error"
	// StatusDegraded marks an operation that succeeded on a fallback path.
	StatusDegraded Status = "degraded"
)

// Attr is an observation attribute.
type Attr struct {
	Key   string
	Value any
}

// String builds a string attribute.
func String(key, value string) Attr {
	return Attr{Key: key, Value: value}
}

// Int builds an int attribute.
func Int(key string, value int) Attr {
	return Attr{Key: key, Value: value}
}

// SpanOptions describes an observed operation.
type SpanOptions struct {
	// Component identifies the emitting component (e.g. "xgateway").
	Component string
	// Operation identifies the operation (e.g. "create_payment_link").
	Operation string
	// Attrs carries extra attributes.
	Attrs []Attr
}

// Result is reported when an observed operation ends.
type Result struct {
	// Status of the operation; derived from Err when empty.
	Status Status
	// Err is the operation error, if any.
	Err error
	// Attrs carries extra result attributes.
	Attrs []Attr
}

// Span is one in-flight observation.
type Span interface {
	// End finishes the observation and records the result.
	End(result Result)
}

// Observer is the unified observation interface.
type Observer interface {
	// Start begins an observation span.
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver discards all observations.
type NoopObserver struct{}

// Start returns ctx unchanged and a no-op span.
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan is the no-op Span implementation.
type NoopSpan struct{}

// End does nothing.
func (NoopSpan) End(Result) {}

// Start begins an observation using observer, tolerating nil values.
//
// Both return values are guaranteed non-nil: a nil ctx becomes
// context.Background(), a nil observer yields a NoopSpan, and a custom
// Observer returning nil values is backstopped the same way.
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}
