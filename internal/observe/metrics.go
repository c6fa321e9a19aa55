// Package observe provides application-wide observability primitives for
// ringwatch: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ringwatch metrics.
const meterName = "github.com/MrWong99/ringwatch"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Detection pipeline ---

	// BlocksProcessed counts audio blocks handed to a detector. Use with
	// attribute:
	//   attribute.String("mode", ...)
	BlocksProcessed metric.Int64Counter

	// BlocksDropped counts blocks discarded by the drop-oldest capture queue.
	BlocksDropped metric.Int64Counter

	// BlockDuration tracks per-block detector computation time.
	BlockDuration metric.Float64Histogram

	// Similarity records DTW similarity scores of pattern match attempts.
	Similarity metric.Float64Histogram

	// DetectionsFired counts detection events delivered to the handler.
	DetectionsFired metric.Int64Counter

	// DetectionsThrottled counts matches suppressed by the throttle window.
	DetectionsThrottled metric.Int64Counter

	// --- Dispatch ---

	// NotifyDuration tracks notifier delivery latency. Use with attributes:
	//   attribute.String("notifier", ...), attribute.String("status", ...)
	NotifyDuration metric.Float64Histogram

	// DispatchDropped counts detection events dropped because the dispatch
	// queue was full.
	DispatchDropped metric.Int64Counter

	// UnlockAttempts counts unlock requests. Use with attribute:
	//   attribute.String("status", ...)
	UnlockAttempts metric.Int64Counter

	// --- Gauges ---

	// StreamClients tracks the number of connected websocket clients.
	StreamClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// blockBuckets defines histogram bucket boundaries (in seconds) for per-block
// computation. A 4096 sample block at 44.1 kHz arrives every ~93 ms, so the
// interesting range sits well below that.
var blockBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// outbound I/O such as notifier delivery.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// similarityBuckets covers the [0, 1] similarity range.
var similarityBuckets = []float64{
	0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.4, 0.5, 0.6, 0.8, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Detection pipeline.
	if met.BlocksProcessed, err = m.Int64Counter("ringwatch.blocks.processed",
		metric.WithDescription("Total audio blocks processed by detector mode."),
	); err != nil {
		return nil, err
	}
	if met.BlocksDropped, err = m.Int64Counter("ringwatch.blocks.dropped",
		metric.WithDescription("Total audio blocks dropped by the capture queue."),
	); err != nil {
		return nil, err
	}
	if met.BlockDuration, err = m.Float64Histogram("ringwatch.block.duration",
		metric.WithDescription("Detector computation time per audio block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(blockBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Similarity, err = m.Float64Histogram("ringwatch.dtw.similarity",
		metric.WithDescription("DTW similarity of pattern match attempts (0 = identical)."),
		metric.WithExplicitBucketBoundaries(similarityBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectionsFired, err = m.Int64Counter("ringwatch.detections.fired",
		metric.WithDescription("Total detection events delivered to the handler."),
	); err != nil {
		return nil, err
	}
	if met.DetectionsThrottled, err = m.Int64Counter("ringwatch.detections.throttled",
		metric.WithDescription("Total detections suppressed by the throttle window."),
	); err != nil {
		return nil, err
	}

	// Dispatch.
	if met.NotifyDuration, err = m.Float64Histogram("ringwatch.notify.duration",
		metric.WithDescription("Latency of notification delivery by notifier and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDropped, err = m.Int64Counter("ringwatch.dispatch.dropped",
		metric.WithDescription("Total detection events dropped by a full dispatch queue."),
	); err != nil {
		return nil, err
	}
	if met.UnlockAttempts, err = m.Int64Counter("ringwatch.unlock.attempts",
		metric.WithDescription("Total unlock requests by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.StreamClients, err = m.Int64UpDownCounter("ringwatch.stream.clients",
		metric.WithDescription("Number of connected live stream clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ringwatch.http.request.duration",
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

// RecordBlock records one processed block and its computation time.
func (m *Metrics) RecordBlock(ctx context.Context, mode string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.BlocksProcessed.Add(ctx, 1, attrs)
	m.BlockDuration.Record(ctx, seconds, attrs)
}

// RecordDetection records the outcome of a match that reached the
// coordinator. fired is false when the throttle suppressed it.
func (m *Metrics) RecordDetection(ctx context.Context, mode string, fired bool) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if fired {
		m.DetectionsFired.Add(ctx, 1, attrs)
		return
	}
	m.DetectionsThrottled.Add(ctx, 1, attrs)
}

// RecordNotify records a notifier delivery attempt.
func (m *Metrics) RecordNotify(ctx context.Context, notifier, status string, seconds float64) {
	m.NotifyDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("notifier", notifier),
			attribute.String("status", status),
		),
	)
}

// RecordUnlock records an unlock request outcome.
func (m *Metrics) RecordUnlock(ctx context.Context, status string) {
	m.UnlockAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
