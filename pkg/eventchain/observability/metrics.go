package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records kernel metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordLeg records one scheduler leg: a popped candidate handed to its
	// handler, with its duration and whether the handler confirmed it.
	RecordLeg(ctx context.Context, kind string, duration time.Duration, confirmed bool)

	// RecordRun records a completed run.
	RecordRun(ctx context.Context, success bool, duration time.Duration, legs int64)

	// RecordSnapshot records a snapshot save.
	RecordSnapshot(ctx context.Context, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	legs         metric.Int64Counter
	legLatency   metric.Float64Histogram
	rejections   metric.Int64Counter
	runs         metric.Int64Counter
	runLatency   metric.Float64Histogram
	runLegs      metric.Int64Histogram
	snapshotSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventchain")

	legs, err := meter.Int64Counter("eventchain.legs",
		metric.WithDescription("Number of scheduler legs handed to handlers"),
	)
	if err != nil {
		return nil, err
	}

	legLatency, err := meter.Float64Histogram("eventchain.leg.latency_ms",
		metric.WithDescription("Leg processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter("eventchain.rejections",
		metric.WithDescription("Number of bounding rejections sent back to the scheduler"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("eventchain.runs",
		metric.WithDescription("Number of runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("eventchain.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runLegs, err := meter.Int64Histogram("eventchain.run.legs",
		metric.WithDescription("Legs processed per run"),
	)
	if err != nil {
		return nil, err
	}

	snapshotSize, err := meter.Int64Histogram("eventchain.snapshot.size_bytes",
		metric.WithDescription("Snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		legs:         legs,
		legLatency:   legLatency,
		rejections:   rejections,
		runs:         runs,
		runLatency:   runLatency,
		runLegs:      runLegs,
		snapshotSize: snapshotSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordLeg records one processed leg.
func (m *otelMetrics) RecordLeg(ctx context.Context, kind string, duration time.Duration, confirmed bool) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("confirmed", confirmed),
	}

	m.legs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.legLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !confirmed {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordRun records a completed run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration, legs int64) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.runLegs.Record(ctx, legs, metric.WithAttributes(attrs...))
}

// RecordSnapshot records a snapshot save.
func (m *otelMetrics) RecordSnapshot(ctx context.Context, sizeBytes int64) {
	m.snapshotSize.Record(ctx, sizeBytes)
}
