// Package observe provides application-wide observability primitives for
// the broker: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all broker metrics.
const meterName = "github.com/brokermcp/broker"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PoolConnectDuration tracks how long GetOrConnect takes, whether that's
	// a fresh connect (dominant cost) or a fast-path reuse (near zero).
	PoolConnectDuration metric.Float64Histogram

	// DiscoveryQueryDuration tracks discover_tools' embed+search latency.
	DiscoveryQueryDuration metric.Float64Histogram

	// HookDuration tracks one hook pipeline pass (before_call or after_call).
	HookDuration metric.Float64Histogram

	// ToolExecutionDuration tracks execute_tool's end-to-end latency,
	// including the provider round trip.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts execute_tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// AuditWrites counts audit log entries appended by AuditHook.
	AuditWrites metric.Int64Counter

	// ReindexCount counts tools (re-)indexed across reindex_tools runs.
	ReindexCount metric.Int64Counter

	// --- Error counters ---

	// PoolConnectErrors counts failed GetOrConnect attempts. Use with
	// attributes: attribute.String("provider", ...), attribute.String("kind", ...)
	PoolConnectErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStdioProcesses tracks the number of currently spawned stdio
	// provider processes held open by the Provider Pool.
	ActiveStdioProcesses metric.Int64UpDownCounter

	// PooledConnections tracks the total number of live pooled sessions
	// across every transport kind.
	PooledConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// a pooled fast-path call (sub-millisecond) through a cold stdio spawn
// (multi-second).
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PoolConnectDuration, err = m.Float64Histogram("broker.pool.connect.duration",
		metric.WithDescription("Latency of Provider Pool GetOrConnect, fast-path or fresh connect."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiscoveryQueryDuration, err = m.Float64Histogram("broker.discovery.query.duration",
		metric.WithDescription("Latency of a discover_tools embed+similarity-search round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HookDuration, err = m.Float64Histogram("broker.hook.duration",
		metric.WithDescription("Latency of one hook pipeline pass (before_call or after_call)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("broker.tool_execution.duration",
		metric.WithDescription("End-to-end latency of execute_tool, including the provider round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("broker.tool.calls",
		metric.WithDescription("Total execute_tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.AuditWrites, err = m.Int64Counter("broker.audit.writes",
		metric.WithDescription("Total audit log entries appended."),
	); err != nil {
		return nil, err
	}
	if met.ReindexCount, err = m.Int64Counter("broker.reindex.count",
		metric.WithDescription("Total tools (re-)indexed across every reindex_tools run."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PoolConnectErrors, err = m.Int64Counter("broker.pool.connect.errors",
		metric.WithDescription("Total failed Provider Pool connect attempts by provider and error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStdioProcesses, err = m.Int64UpDownCounter("broker.pool.active_stdio_processes",
		metric.WithDescription("Number of currently spawned stdio provider processes."),
	); err != nil {
		return nil, err
	}
	if met.PooledConnections, err = m.Int64UpDownCounter("broker.pool.connections",
		metric.WithDescription("Number of live pooled provider sessions across every transport."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("broker.http.request.duration",
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

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordAuditWrite is a convenience method that records an audit write
// counter increment.
func (m *Metrics) RecordAuditWrite(ctx context.Context) {
	m.AuditWrites.Add(ctx, 1)
}

// RecordPoolConnectError is a convenience method that records a pool
// connect error counter increment with the standard attribute set.
func (m *Metrics) RecordPoolConnectError(ctx context.Context, provider, kind string) {
	m.PoolConnectErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
