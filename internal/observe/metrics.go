// Package observe provides the OpenTelemetry metric instruments for
// CantinaOS and the Prometheus bridge that exposes them on the dashboard
// server's /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CantinaOS metrics.
const meterName = "github.com/cantina-works/cantinaos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// OperationDuration tracks pipeline stage latency. Use with attribute:
	//   attribute.String("operation", ...)
	OperationDuration metric.Float64Histogram

	// BusDrops counts deliveries dropped by full subscriber queues. Use
	// with attribute: attribute.String("topic", ...)
	BusDrops metric.Int64Counter

	// ToolCalls counts LLM tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// VoiceTurns counts completed voice interaction turns by outcome.
	VoiceTurns metric.Int64Counter

	// ActiveSessions tracks the number of connected dashboard sessions.
	ActiveSessions metric.Int64UpDownCounter

	// PlaybackStarts counts music playback starts by request source.
	PlaybackStarts metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.OperationDuration, err = m.Float64Histogram("cantinaos.operation.duration",
		metric.WithDescription("Latency of pipeline operations by name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BusDrops, err = m.Int64Counter("cantinaos.bus.drops",
		metric.WithDescription("Total deliveries dropped by full subscriber queues, by topic."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("cantinaos.tool.calls",
		metric.WithDescription("Total LLM tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.VoiceTurns, err = m.Int64Counter("cantinaos.voice.turns",
		metric.WithDescription("Total completed voice turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cantinaos.dashboard.sessions",
		metric.WithDescription("Number of connected dashboard sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("cantinaos.music.playback.starts",
		metric.WithDescription("Total music playback starts by request source."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordOperation records one latency sample for a named pipeline stage.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, seconds float64) {
	m.OperationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordBusDrop records one dropped delivery on a topic.
func (m *Metrics) RecordBusDrop(ctx context.Context, topic string) {
	m.BusDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("topic", topic)),
	)
}

// RecordToolCall records one tool invocation with its outcome status.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordVoiceTurn records one completed voice turn with its outcome.
func (m *Metrics) RecordVoiceTurn(ctx context.Context, outcome string) {
	m.VoiceTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordPlaybackStart records one music playback start.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, source string) {
	m.PlaybackStarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}
