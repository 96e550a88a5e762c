package telemetry

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/autoflow/config"
)

// saveAndRestoreGlobalProviders snapshots the global OTel state and restores
// it via t.Cleanup so tests don't leak providers.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	origProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
		otel.SetTextMapPropagator(origProp)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.ForceFlush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_DisabledStillPropagates(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	_, err := Init(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(header))

	out := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out))
	assert.Contains(t, out.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestInit_EnabledExportsSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	exporter := tracetest.NewInMemoryExporter()

	cfg := config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "autoflow-test",
		SampleRate:  1,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t),
		WithSpanExporter(exporter),
		WithMetricReader(sdkmetric.NewManualReader()),
		WithVersion("v1.2.3"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)
	_, isSDKMeter := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, isSDKMeter)

	_, span := otel.Tracer("autoflow/workflow").Start(context.Background(), "workflow.execute")
	span.End()
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "workflow.execute", spans[0].Name)

	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, semconv.ServiceNameKey.String("autoflow-test"))
	assert.Contains(t, attrs, semconv.ServiceVersionKey.String("v1.2.3"))
}

func TestInit_DefaultServiceName(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	exporter := tracetest.NewInMemoryExporter()

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: true}, nil,
		WithSpanExporter(exporter),
		WithMetricReader(sdkmetric.NewManualReader()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()
	require.NoError(t, p.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Resource.Attributes(), semconv.ServiceNameKey.String("autoflow"))
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ForceFlush(context.Background()))
}

func TestSampleRate(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 1},
		{-0.5, 1},
		{0.25, 0.25},
		{1, 1},
		{3, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sampleRate(tt.in))
	}
}

func TestBuildVersion(t *testing.T) {
	// Test binaries report "(devel)", which falls back to "dev".
	assert.Equal(t, "dev", buildVersion())
}
