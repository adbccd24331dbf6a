// Package observability provides OpenTelemetry tracing for the extractor.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/hibob-extractor"

var (
	tracer trace.Tracer
	mu     sync.RWMutex
)

// SetTracerProvider installs tp as the global provider and tracer source.
func SetTracerProvider(tp trace.TracerProvider, name string) {
	if name == "" {
		name = instrumentationName
	}
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracer = tp.Tracer(name)
	mu.Unlock()
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	if t != nil {
		return t
	}
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named operation carrying attrs.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, operation, trace.WithAttributes(attrs...))
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

// Attr converts a loosely typed value into a span attribute.
func Attr(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
