package capture

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides OpenTelemetry instruments for captures
type Metrics struct {
	captureDuration metric.Float64Histogram
	captureTotal    metric.Int64Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	captureDuration, err := meter.Float64Histogram(
		"pisnap_capture_duration_seconds",
		metric.WithDescription("Duration of still captures in seconds, from trigger to saved file"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	captureTotal, err := meter.Int64Counter(
		"pisnap_captures_total",
		metric.WithDescription("Total number of capture attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		captureDuration: captureDuration,
		captureTotal:    captureTotal,
	}, nil
}

// RecordCapture records metrics for a finished capture attempt.
// kind is empty on success.
func (m *Metrics) RecordCapture(ctx context.Context, status string, kind Kind, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String("kind", string(kind)))
	}

	m.captureDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.captureTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
