package cloak

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zoobzio/cloak"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

// Instruments are created against the global provider, which delegates to
// whatever provider the host installs later.
var (
	encryptCounter  = mustCounter("cloak.field.encrypts", "Marked field writes sealed")
	decryptCounter  = mustCounter("cloak.field.decrypts", "Marked field reads opened")
	lockedCounter   = mustCounter("cloak.field.locked_reads", "Marked field reads without a usable key")
	rejectCounter   = mustCounter("cloak.field.rejected_writes", "Marked field writes without a usable key")
	wrapCounter     = mustCounter("cloak.instance.wraps", "Plain objects wrapped in new tracked instances")
	relinkCounter   = mustCounter("cloak.instance.relinks", "Encrypted objects relinked")
	generateCounter = mustCounter("cloak.type.generations", "Encrypted types generated")
)

func mustCounter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return c
}

// record adds one to c, tagged with the type and optional field.
func record(ctx context.Context, c metric.Int64Counter, typeName, field string) {
	if c == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("cloak.type", typeName)}
	if field != "" {
		attrs = append(attrs, attribute.String("cloak.field", field))
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// startSpan opens a span for a cloak operation on typeName.
func startSpan(ctx context.Context, name, typeName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("cloak.type", typeName)))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
