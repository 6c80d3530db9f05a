// Package observe provides application-wide observability primitives for
// Legal Sathi: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported via
// the Prometheus bridge set up by [InitProvider], so they remain scrapeable
// at the standard /metrics endpoint. Tests should use [NewMetrics] with a
// private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/legalsathi/sathi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Voice pipeline ---

	// ActiveVoiceSessions tracks the number of live voice sessions.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// FramesSent counts capture frames forwarded to the live provider.
	FramesSent metric.Int64Counter

	// ChunksScheduled counts playback chunks handed to the scheduler.
	ChunksScheduled metric.Int64Counter

	// Interruptions counts barge-in events (model speech cut off by the user).
	Interruptions metric.Int64Counter

	// DecodeErrors counts audio payloads that failed to decode.
	DecodeErrors metric.Int64Counter

	// --- Text flows ---

	// ChatDuration tracks legal advice completion latency. Use with
	// attribute.String("backend", ...).
	ChatDuration metric.Float64Histogram

	// DocumentAnalysisDuration tracks document analysis latency.
	DocumentAnalysisDuration metric.Float64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-backed request latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("sathi.voice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("sathi.voice.frames_sent",
		metric.WithDescription("Capture frames forwarded to the live provider."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("sathi.voice.chunks_scheduled",
		metric.WithDescription("Playback chunks handed to the scheduler."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("sathi.voice.interruptions",
		metric.WithDescription("Barge-in events that stopped model playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("sathi.voice.decode_errors",
		metric.WithDescription("Audio payloads that failed to decode."),
	); err != nil {
		return nil, err
	}

	if met.ChatDuration, err = m.Float64Histogram("sathi.chat.duration",
		metric.WithDescription("Latency of legal advice completions by backend."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DocumentAnalysisDuration, err = m.Float64Histogram("sathi.documents.analysis.duration",
		metric.WithDescription("Latency of document analysis requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("sathi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from the global meter provider. Panics if instrument creation
// fails, which should not happen with the global provider.
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

// RecordChat records one chat completion's latency for a backend.
func (m *Metrics) RecordChat(ctx context.Context, backend string, seconds float64) {
	m.ChatDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}
