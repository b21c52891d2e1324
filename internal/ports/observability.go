package ports

import "context"

// Metric names recorded by the scheduler.
const (
	// MetricNodeExecutions counts finished node executions by opcode and status.
	MetricNodeExecutions = "opgraph_node_executions_total"
	// MetricNodeDuration observes node execution time in seconds by opcode.
	MetricNodeDuration = "opgraph_node_duration_seconds"
	// MetricInFlight is the number of dispatched but uncompleted tasks.
	MetricInFlight = "opgraph_inflight_tasks"
	// MetricRuns counts finished runs by status.
	MetricRuns = "opgraph_runs_total"
)

// MetricsCollector records quantitative observability signals. The interface is
// kept generic so adapters can back onto Prometheus or any other backend.
type MetricsCollector interface {
	IncCounter(ctx context.Context, name string, labels map[string]string)
	SetGauge(ctx context.Context, name string, value float64, labels map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string)
}

// Tracer manages tracing spans. Span names follow `<component>.<operation>`
// (e.g., `scheduler.run`, `scheduler.node`).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, Span)
}

// Span represents an active tracing span.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(status SpanStatus, message string)
	End()
}

// SpanStatus provides strongly typed span result semantics.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)
