// Package telemetry records a span and request metrics for every dispatched
// request.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/recordbase/recordbase_sdk_go"

// SpanName is the name of the span wrapping a single dispatch.
const SpanName = "recordbase.send"

// Outcome classifies how a request finished.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeServerError    Outcome = "server_error"
)

var (
	attrMethod    = attribute.Key("http.request.method")
	attrURL       = attribute.Key("url.full")
	attrStatus    = attribute.Key("http.response.status_code")
	attrOutcome   = attribute.Key("recordbase.outcome")
	attrCancelKey = attribute.Key("recordbase.cancel_key")
)

// RequestData captures what is recorded once a request completes.
type RequestData struct {
	Method   string
	Status   int
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Instruments bundles the tracer and metric instruments used by a client.
type Instruments struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// New builds instruments from the given providers; nil providers fall back to
// the otel globals.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("recordbase.requests",
		metric.WithDescription("Total number of dispatched requests by outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("recordbase.request.duration",
		metric.WithDescription("Request latency in milliseconds."), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}, nil
}

// StartRequest opens the dispatch span.
func (i *Instruments) StartRequest(ctx context.Context, method, url, cancelKey string) (context.Context, trace.Span) {
	if i == nil || i.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	attrs := []attribute.KeyValue{attrMethod.String(method), attrURL.String(url)}
	if cancelKey != "" {
		attrs = append(attrs, attrCancelKey.String(cancelKey))
	}
	return i.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

// EndRequest closes span and records the request metrics.
func (i *Instruments) EndRequest(ctx context.Context, span trace.Span, data RequestData) {
	if span != nil {
		if data.Status > 0 {
			span.SetAttributes(attrStatus.Int(data.Status))
		}
		span.SetAttributes(attrOutcome.String(string(data.Outcome)))
		if data.Err != nil {
			span.RecordError(data.Err)
			span.SetStatus(codes.Error, data.Err.Error())
		}
		span.End()
	}
	if i == nil || i.requests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attrMethod.String(data.Method),
		attrOutcome.String(string(data.Outcome)),
	}
	if data.Status > 0 {
		attrs = append(attrs, attrStatus.Int(data.Status))
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	if i.duration != nil {
		i.duration.Record(ctx, float64(data.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}
