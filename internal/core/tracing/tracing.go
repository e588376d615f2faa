// Package tracing bridges the messaging layer onto OpenTelemetry. The bridge
// is a constructed capability handed to publishers and consumers; nothing in
// this package reads process-global state after construction.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/drblury/eventwire"

// Bridge owns the tracer and propagator used for every span and carrier this
// layer touches. Construct one with New and inject it; the defaults resolve
// the global provider and propagator exactly once.
type Bridge struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

type config struct {
	tracerName string
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// Option configures a Bridge.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(c *config) {
		c.provider = tp
	})
}

// WithPropagator sets the text map propagator used for carrier injection and
// extraction.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return optionFunc(func(c *config) {
		c.propagator = p
	})
}

// WithTracerName overrides the instrumentation scope name.
func WithTracerName(name string) Option {
	return optionFunc(func(c *config) {
		c.tracerName = name
	})
}

// New constructs a Bridge. Without options it snapshots the global tracer
// provider and propagator at call time.
func New(opts ...Option) *Bridge {
	cfg := &config{tracerName: defaultTracerName}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}
	if cfg.propagator == nil {
		cfg.propagator = otel.GetTextMapPropagator()
	}
	return &Bridge{
		tracer:     cfg.provider.Tracer(cfg.tracerName),
		propagator: cfg.propagator,
	}
}

// StartSpan opens a span of the given kind as a child of whatever is in ctx.
// The caller owns ending it.
func (b *Bridge) StartSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// Inject writes the current trace context into the carrier as W3C
// traceparent/tracestate entries and returns the same map. A nil carrier is
// allocated.
func (b *Bridge) Inject(ctx context.Context, carrier map[string]string) map[string]string {
	if carrier == nil {
		carrier = make(map[string]string, 2)
	}
	b.propagator.Inject(ctx, propagation.MapCarrier(carrier))
	return carrier
}

// Extract reads a trace parent out of the carrier. Absent or malformed
// entries simply leave ctx without a remote parent; Extract never fails.
func (b *Bridge) Extract(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return b.propagator.Extract(ctx, propagation.MapCarrier(carrier))
}

// WithSpan runs fn inside a span. Errors and panics are recorded on the span
// and returned or rethrown unchanged; the span ends exactly once on every
// exit path.
func (b *Bridge) WithSpan(ctx context.Context, name string, kind trace.SpanKind, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := b.StartSpan(ctx, name, kind, attrs...)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			span.RecordError(fmt.Errorf("panic: %v", r))
			span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
