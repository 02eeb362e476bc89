package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer, metrics and event publisher.
// Components accept a *Telemetry and tolerate nil.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	if t.Logger != nil {
		ctx = t.Logger.WithContext(ctx)
	}
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains events and flushes spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(t.Events.Shutdown(ctx), t.Tracer.Shutdown(ctx))
}

// Accessors that tolerate a nil *Telemetry.

func (t *Telemetry) tracer() *Tracer {
	if t == nil {
		return nil
	}
	return t.Tracer
}

// MetricsOrNil returns the metrics collector or nil.
func (t *Telemetry) MetricsOrNil() *Metrics {
	if t == nil {
		return nil
	}
	return t.Metrics
}

// EventsOrNil returns the event publisher or nil.
func (t *Telemetry) EventsOrNil() *EventPublisher {
	if t == nil {
		return nil
	}
	return t.Events
}

// InstrumentedContext carries a span and timer for one operation.
type InstrumentedContext struct {
	Ctx   context.Context
	Span  trace.Span
	Timer *Timer
}

// StartOperation begins a traced, timed operation.
func (t *Telemetry) StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	spanCtx, span := t.tracer().StartSpan(ctx, operation, attrs...)
	return &InstrumentedContext{
		Ctx:   spanCtx,
		Span:  span,
		Timer: NewTimer(),
	}
}

// StartResolution begins the operation for one top-level resolution.
func (t *Telemetry) StartResolution(ctx context.Context, resolutionID, scheme, raw string) *InstrumentedContext {
	return t.StartOperation(ctx, "resolution.scan",
		AttrResolutionID.String(resolutionID),
		AttrScheme.String(scheme),
		AttrSpec.String(raw),
	)
}

// StartTransition begins the operation for one lifecycle transition of the
// artifact at location.
func (t *Telemetry) StartTransition(ctx context.Context, transition, location string) *InstrumentedContext {
	return t.StartOperation(ctx, "lifecycle."+transition,
		AttrTransition.String(transition),
		AttrLocation.String(location),
	)
}

// End finishes the operation, recording success or failure on the span.
func (ic *InstrumentedContext) End(err error) {
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}
