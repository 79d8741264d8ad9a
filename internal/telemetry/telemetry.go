// Package telemetry sets up the OpenTelemetry meter used for capture and
// HTTP metrics.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/cjeanneret/PiSnap/internal/debug"
)

// ServiceName identifies this process in exported metrics.
const ServiceName = "pisnap"

const meterName = "github.com/cjeanneret/PiSnap"

// ShutdownFunc flushes and stops the meter provider.
type ShutdownFunc func(context.Context) error

// Setup returns the meter to record with. When endpoint is empty, metrics are
// disabled and the global no-op meter is returned.
func Setup(ctx context.Context, endpoint string, interval time.Duration) (metric.Meter, ShutdownFunc, error) {
	if endpoint == "" {
		debug.Verbose("Metrics disabled (no OTLP endpoint)")
		return otel.Meter(meterName), func(context.Context) error { return nil }, nil
	}

	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	provider := NewMeterProvider(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))
	otel.SetMeterProvider(provider)

	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nil, fmt.Errorf("start runtime metrics: %w", err)
	}

	debug.Info("Metrics exported to %s every %s", endpoint, interval)
	return provider.Meter(meterName), provider.Shutdown, nil
}

// NewMeterProvider builds an SDK provider tagged with the service name.
func NewMeterProvider(reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
}
