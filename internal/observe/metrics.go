// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/canning1295/RealTimeTranslate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks transcription latency.
	TranscribeDuration metric.Float64Histogram

	// TranslateDuration tracks translation stream latency (open to final token).
	TranslateDuration metric.Float64Histogram

	// SynthesizeDuration tracks speech-synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// UtteranceDuration tracks end-to-end latency from buffer close to
	// terminal status.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// UtterancesChunked counts utterance buffers emitted by the chunker.
	UtterancesChunked metric.Int64Counter

	// UtterancesFinalized counts utterances reaching a terminal status.
	// Use with attribute.String("status", ...).
	UtterancesFinalized metric.Int64Counter

	// StageRetries counts retry attempts. Use with attribute.String("stage", ...).
	StageRetries metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveUtterances tracks utterances between buffer close and terminal
	// status.
	ActiveUtterances metric.Int64UpDownCounter

	// ActiveSessions tracks live listening sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("rtt.transcribe.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslateDuration, err = m.Float64Histogram("rtt.translate.duration",
		metric.WithDescription("Latency of the translation token stream, open to final token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("rtt.synthesize.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("rtt.utterance.duration",
		metric.WithDescription("End-to-end latency from buffer close to terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.UtterancesChunked, err = m.Int64Counter("rtt.utterances.chunked",
		metric.WithDescription("Total utterance buffers emitted by the chunker."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesFinalized, err = m.Int64Counter("rtt.utterances.finalized",
		metric.WithDescription("Total utterances reaching a terminal status, by status."),
	); err != nil {
		return nil, err
	}
	if met.StageRetries, err = m.Int64Counter("rtt.stage.retries",
		metric.WithDescription("Total retry attempts by stage."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("rtt.provider.errors",
		metric.WithDescription("Total provider errors by stage and fault kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveUtterances, err = m.Int64UpDownCounter("rtt.active_utterances",
		metric.WithDescription("Utterances currently between buffer close and terminal status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("rtt.active_sessions",
		metric.WithDescription("Number of live listening sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("rtt.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStageDuration records a stage latency sample on the histogram that
// matches stage ("transcribing", "translating" or "synthesizing"). Unknown
// stages are ignored.
func (m *Metrics) RecordStageDuration(ctx context.Context, stage string, seconds float64) {
	switch stage {
	case "transcribing":
		m.TranscribeDuration.Record(ctx, seconds)
	case "translating":
		m.TranslateDuration.Record(ctx, seconds)
	case "synthesizing":
		m.SynthesizeDuration.Record(ctx, seconds)
	}
}

// RecordFinalized records an utterance reaching a terminal status.
func (m *Metrics) RecordFinalized(ctx context.Context, status string) {
	m.UtterancesFinalized.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordRetries records retry attempts consumed by a stage call.
func (m *Metrics) RecordRetries(ctx context.Context, stage string, n int) {
	if n <= 0 {
		return
	}
	m.StageRetries.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordProviderError records a provider error by stage and fault kind.
func (m *Metrics) RecordProviderError(ctx context.Context, stage, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}
