package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerProviderDisabledIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{})
	require.NoError(t, err)

	_, span := tp.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProviderZipkin(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingConfig{
		Enabled:  true,
		Exporter: ExporterZipkin,
		Endpoint: "http://127.0.0.1:1/api/v2/spans",
	})
	require.NoError(t, err)

	_, span := tp.Tracer().Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}

func TestNewTracerProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), TracingConfig{Enabled: true, Exporter: "jaeger"})
	assert.ErrorContains(t, err, "unsupported trace exporter")
}

func TestNilTracerProviderIsSafe(t *testing.T) {
	var tp *TracerProvider
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}
