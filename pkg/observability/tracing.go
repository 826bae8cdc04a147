package observability

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of gemlock spans.
const TracerName = "gemlock"

// Tracer returns the tracer from the global provider. Without an installed
// provider every span is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts an internal span with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NewTracerProvider returns a provider that writes every ended span to w as
// one JSON object per line.
func NewTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", TracerName))),
	), nil
}

// TraceFile is a global tracer provider exporting to a file.
type TraceFile struct {
	provider *sdktrace.TracerProvider
	previous trace.TracerProvider
	file     *os.File
}

// StartTraceFile truncates path and installs a global tracer provider that
// writes spans to it until Close.
func StartTraceFile(path string) (*TraceFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	tp, err := NewTracerProvider(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	t := &TraceFile{provider: tp, previous: otel.GetTracerProvider(), file: f}
	otel.SetTracerProvider(tp)
	return t, nil
}

// Close flushes pending spans, puts the previous provider back and closes
// the file.
func (t *TraceFile) Close(ctx context.Context) error {
	otel.SetTracerProvider(t.previous)
	return errors.Join(t.provider.Shutdown(ctx), t.file.Close())
}
