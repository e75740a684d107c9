// Package observe provides application-wide observability primitives for
// scholarpipe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all scholarpipe metrics.
const meterName = "github.com/recondite-labs/scholarpipe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks per-stage pipeline latency. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency. Use with attribute:
	//   attribute.String("operation", ...)
	LLMDuration metric.Float64Histogram

	// SearchDuration tracks web-search latency per query.
	SearchDuration metric.Float64Histogram

	// FetchDuration tracks per-URL content fetch latency.
	FetchDuration metric.Float64Histogram

	// --- Counters ---

	// TasksStarted counts launched research tasks. Use with attribute:
	//   attribute.String("depth", ...)
	TasksStarted metric.Int64Counter

	// TasksFinished counts finished research tasks. Use with attributes:
	//   attribute.String("depth", ...), attribute.String("status", ...)
	TasksFinished metric.Int64Counter

	// LLMRequests counts LLM API calls. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// FetchResults counts fetch outcomes. Use with attributes:
	//   attribute.String("method", ...), attribute.String("status", ...)
	FetchResults metric.Int64Counter

	// --- Error counters ---

	// LLMErrors counts LLM failures by operation.
	LLMErrors metric.Int64Counter

	// --- Gauges ---

	// TasksActive tracks the number of research tasks currently executing.
	TasksActive metric.Int64UpDownCounter

	// ChatStreams tracks the number of open chat WebSocket streams.
	ChatStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds). Pipeline
// stages span from sub-second fetches to multi-minute synthesis runs.
var stageBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("scholarpipe.stage.duration",
		metric.WithDescription("Latency of each research pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("scholarpipe.llm.duration",
		metric.WithDescription("Latency of LLM inference by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("scholarpipe.search.duration",
		metric.WithDescription("Latency of web-search queries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("scholarpipe.fetch.duration",
		metric.WithDescription("Latency of per-URL content fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TasksStarted, err = m.Int64Counter("scholarpipe.tasks.started",
		metric.WithDescription("Total research tasks launched, by depth."),
	); err != nil {
		return nil, err
	}
	if met.TasksFinished, err = m.Int64Counter("scholarpipe.tasks.finished",
		metric.WithDescription("Total research tasks finished, by depth and terminal status."),
	); err != nil {
		return nil, err
	}
	if met.LLMRequests, err = m.Int64Counter("scholarpipe.llm.requests",
		metric.WithDescription("Total LLM API requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.FetchResults, err = m.Int64Counter("scholarpipe.fetch.results",
		metric.WithDescription("Total fetch outcomes by extraction method and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.LLMErrors, err = m.Int64Counter("scholarpipe.llm.errors",
		metric.WithDescription("Total LLM failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.TasksActive, err = m.Int64UpDownCounter("scholarpipe.tasks.active",
		metric.WithDescription("Number of research tasks currently executing."),
	); err != nil {
		return nil, err
	}
	if met.ChatStreams, err = m.Int64UpDownCounter("scholarpipe.chat.streams",
		metric.WithDescription("Number of open chat WebSocket streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("scholarpipe.http.request.duration",
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

// RecordStage records one pipeline stage completion with its duration.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordLLMCall records one LLM request with its duration. Failed calls also
// increment the error counter.
func (m *Metrics) RecordLLMCall(ctx context.Context, operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.LLMErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("operation", operation)),
		)
	}
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordSearch records one search query with its duration.
func (m *Metrics) RecordSearch(ctx context.Context, d time.Duration) {
	m.SearchDuration.Record(ctx, d.Seconds())
}

// RecordFetch records one URL fetch outcome with its duration.
func (m *Metrics) RecordFetch(ctx context.Context, method, status string, d time.Duration) {
	m.FetchResults.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		),
	)
	m.FetchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// TaskStarted records a task launch and bumps the active gauge.
func (m *Metrics) TaskStarted(ctx context.Context, depth string) {
	m.TasksStarted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("depth", depth)),
	)
	m.TasksActive.Add(ctx, 1)
}

// TaskDone records a task reaching a terminal status and drops the active gauge.
func (m *Metrics) TaskDone(ctx context.Context, depth, status string) {
	m.TasksFinished.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("depth", depth),
			attribute.String("status", status),
		),
	)
	m.TasksActive.Add(ctx, -1)
}
