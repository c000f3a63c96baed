// Package observe provides application-wide observability primitives for
// chattervc: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all chattervc metrics.
const meterName = "github.com/MrWong99/chattervc"

// Conversion outcomes recorded on [Metrics.ConversionOutcomes].
const (
	OutcomeApplied     = "applied"
	OutcomeSkipped     = "skipped"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SynthesisDuration tracks base synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// ConversionDuration tracks timbre conversion latency, including the temp
	// file round trip.
	ConversionDuration metric.Float64Histogram

	// EncodeDuration tracks resampling plus container encoding.
	EncodeDuration metric.Float64Histogram

	// RequestDuration tracks a whole speech request through the pipeline.
	RequestDuration metric.Float64Histogram

	// --- Counters ---

	// SpeechRequests counts pipeline runs. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	SpeechRequests metric.Int64Counter

	// ConversionOutcomes counts what happened to the conversion stage. Use with
	// attribute.String("outcome", ...) set to one of the Outcome* constants.
	ConversionOutcomes metric.Int64Counter

	// EngineInits counts engine construction attempts. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	EngineInits metric.Int64Counter

	// CatalogScans counts voice catalog scans. Use with attribute:
	//   attribute.String("status", ...)
	CatalogScans metric.Int64Counter

	// --- Gauges ---

	// IndexedVoices is the number of voices in the current catalog index.
	IndexedVoices metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Neural
// synthesis of a paragraph routinely takes tens of seconds on a cold GPU.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.SynthesisDuration, err = histogram("chattervc.synthesis.duration",
		"Latency of base speech synthesis."); err != nil {
		return nil, err
	}
	if met.ConversionDuration, err = histogram("chattervc.conversion.duration",
		"Latency of timbre conversion."); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = histogram("chattervc.encode.duration",
		"Latency of resampling and encoding."); err != nil {
		return nil, err
	}
	if met.RequestDuration, err = histogram("chattervc.request.duration",
		"End-to-end speech request latency."); err != nil {
		return nil, err
	}

	if met.SpeechRequests, err = m.Int64Counter("chattervc.speech.requests",
		metric.WithDescription("Total speech requests by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.ConversionOutcomes, err = m.Int64Counter("chattervc.conversion.outcomes",
		metric.WithDescription("Conversion stage outcomes."),
	); err != nil {
		return nil, err
	}
	if met.EngineInits, err = m.Int64Counter("chattervc.engine.inits",
		metric.WithDescription("Engine construction attempts by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.CatalogScans, err = m.Int64Counter("chattervc.catalog.scans",
		metric.WithDescription("Voice catalog scans by status."),
	); err != nil {
		return nil, err
	}

	if met.IndexedVoices, err = m.Int64Gauge("chattervc.catalog.voices",
		metric.WithDescription("Number of voices in the catalog index."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("chattervc.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSpeechRequest records one finished pipeline run.
func (m *Metrics) RecordSpeechRequest(ctx context.Context, engine, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.SpeechRequests.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RecordConversion records the conversion stage outcome.
func (m *Metrics) RecordConversion(ctx context.Context, outcome string) {
	m.ConversionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordEngineInit records one engine construction attempt.
func (m *Metrics) RecordEngineInit(ctx context.Context, engine, status string) {
	m.EngineInits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
}

// RecordCatalogScan records a finished scan and the resulting voice count.
func (m *Metrics) RecordCatalogScan(ctx context.Context, status string, voices int) {
	m.CatalogScans.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	if status == "ok" {
		m.IndexedVoices.Record(ctx, int64(voices))
	}
}
