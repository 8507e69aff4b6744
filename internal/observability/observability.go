package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// Observability bundles the tracing shutdown hook and the Prometheus
// scrape handler.
type Observability struct {
	tracerShutdown    func(ctx context.Context) error
	PrometheusHandler http.Handler
	TracingEnabled    bool
}

// Setup wires OpenTelemetry tracing (when OTEL_EXPORTER_OTLP_ENDPOINT is
// set) and the Prometheus handler. Tracing being unavailable is not an
// error; the service runs without it.
func Setup(ctx context.Context, serviceName string) (*Observability, error) {
	obs := &Observability{
		PrometheusHandler: promhttp.Handler(),
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		zap.L().Info("OTLP endpoint not configured, tracing disabled")
		return obs, nil
	}

	// otlptracehttp expects host:port without a scheme.
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(getEnv("ENV", "development")),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	obs.tracerShutdown = tp.Shutdown
	obs.TracingEnabled = true
	zap.L().Info("tracing enabled", zap.String("endpoint", endpoint))

	return obs, nil
}

// Shutdown flushes and stops the tracer provider.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o.tracerShutdown != nil {
		if err := o.tracerShutdown(ctx); err != nil {
			return fmt.Errorf("tracer shutdown: %w", err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
