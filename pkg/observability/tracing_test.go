package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	SetTracerProvider(tp, "test")

	ctx, span := StartSpan(context.Background(), "resource.employees", Attr("rows", 3))
	_, child := StartSpan(ctx, "http.request")
	EndSpan(child, errors.New("boom"))
	EndSpan(span, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "http.request", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	assert.Equal(t, "resource.employees", ended[1].Name())
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
	assert.Contains(t, ended[1].Attributes(), attribute.Int("rows", 3))
}

func TestInitWritesTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := Init(TracingConfig{Enabled: true, ServiceName: "hibob-extractor-test", OutputPath: path})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "run")
	EndSpan(span, nil)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"run"`)
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(TracingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, GetTracer())
}

func TestAttr(t *testing.T) {
	assert.Equal(t, attribute.String("k", "v"), Attr("k", "v"))
	assert.Equal(t, attribute.Bool("k", true), Attr("k", true))
	assert.Equal(t, attribute.Int64("k", 4), Attr("k", int64(4)))
	assert.Equal(t, attribute.String("k", "[a]"), Attr("k", []string{"a"}))
}
