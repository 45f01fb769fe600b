package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/anishgillella/serene-sub003/internal/config"
)

func TestInitTracerNone(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), &config.TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerStdout(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), &config.TracingConfig{Exporter: "stdout", ServiceName: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerUnknown(t *testing.T) {
	_, err := InitTracer(context.Background(), &config.TracingConfig{Exporter: "zipkin"})
	assert.Error(t, err)
}
