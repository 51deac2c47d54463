package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracerRequiresEndpoint(t *testing.T) {
	_, err := InitTracer(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestInitTracerInstallsProvider(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracer(ctx, Config{Endpoint: "http://127.0.0.1:4318/v1/traces", SampleRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		// Nothing listens on the endpoint; do not wait out export retries.
		shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	})

	assert.Same(t, tp, otel.GetTracerProvider())
	_, span := otel.Tracer("test").Start(ctx, "probe")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestSamplerBounds(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{7, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{0, sdktrace.ParentBased(sdktrace.NeverSample()).Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.ratio).Description())
	}
}
