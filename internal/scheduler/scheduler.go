// Package scheduler executes a validated network: nodes whose inputs are all
// available are dispatched to worker goroutines under a concurrency limit, and
// each completion frees the nodes that depended on it.
package scheduler

import (
	"context"
	"runtime"
	"time"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Scheduler runs networks with bounded parallelism.
type Scheduler struct {
	logger      ports.Logger
	metrics     ports.MetricsCollector
	tracer      ports.Tracer
	events      ports.EventPublisher
	parallelism int
	checkpoint  CheckpointFunc
	stream      chan<- NodeOutput
	runID       string
	resume      map[int]operator.Outputs
	onState     func(State)
	limiter     *Limiter
}

// Option configures a scheduler instance.
type Option func(*Scheduler)

// WithLogger injects a logger.
func WithLogger(logger ports.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics injects a metrics collector.
func WithMetrics(metrics ports.MetricsCollector) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// WithTracer injects a tracer.
func WithTracer(tracer ports.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// WithEvents injects an event publisher.
func WithEvents(events ports.EventPublisher) Option {
	return func(s *Scheduler) {
		s.events = events
	}
}

// WithParallelism sets the number of concurrency slots. Values below 1 mean
// one slot per CPU.
func WithParallelism(parallelism int) Option {
	return func(s *Scheduler) {
		s.parallelism = parallelism
	}
}

// WithCheckpoint installs a hook called once per completed node.
func WithCheckpoint(fn CheckpointFunc) Option {
	return func(s *Scheduler) {
		s.checkpoint = fn
	}
}

// WithStream sends every node's outputs to ch as it completes. Run never
// closes ch.
func WithStream(ch chan<- NodeOutput) Option {
	return func(s *Scheduler) {
		s.stream = ch
	}
}

// WithRunID fixes the run identifier. Otherwise the correlation ID from the
// context is used, or a fresh one is generated.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		s.runID = id
	}
}

// WithResume treats the given nodes as already completed with the given
// outputs. They are not executed again.
func WithResume(outputs map[int]operator.Outputs) Option {
	return func(s *Scheduler) {
		s.resume = outputs
	}
}

// WithStateHook observes phase transitions of every run.
func WithStateHook(fn func(State)) Option {
	return func(s *Scheduler) {
		s.onState = fn
	}
}

// New constructs a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNoOpLogger()
	}
	if s.parallelism < 1 {
		s.parallelism = runtime.NumCPU()
	}
	s.limiter = NewLimiter(s.parallelism)
	return s
}

// Limiter exposes the scheduler's concurrency limiter.
func (s *Scheduler) Limiter() *Limiter {
	return s.limiter
}

// Run executes net until every node completed, a node failed, or ctx is done.
// The network must have passed Validate; Run does not check it again. On
// failure the returned error is an *errors.ExecutionError naming the node, and
// the partial Result lists what did complete.
func (s *Scheduler) Run(ctx context.Context, net *network.Network) (*Result, error) {
	if net == nil {
		return nil, opgrapherrors.NewConfigurationError("network is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runID := s.runID
	if runID == "" {
		runID = ports.GetCorrelationID(ctx)
	}
	if runID == "" {
		runID = ports.GenerateCorrelationID()
	}
	if ports.GetCorrelationID(ctx) == "" {
		ctx = ports.WithCorrelationID(ctx, runID)
	}

	var span ports.Span
	if s.tracer != nil {
		var spanCtx context.Context
		spanCtx, span = s.tracer.StartSpan(ctx, "scheduler.run", "run_id", runID, "nodes", net.NodeCount())
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer span.End()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := s.logger.With("component", "scheduler", "run_id", runID)
	r := newRun(runCtx, s, net, runID, logger)

	start := time.Now()
	logger.Info(ctx, "run started", "nodes", net.NodeCount(), "edges", len(net.Edges), "parallelism", s.limiter.Capacity())
	publishEvent(ctx, s.events, logger, ports.EventRunStarted, map[string]interface{}{
		"run_id":    runID,
		"nodes":     net.NodeCount(),
		"timestamp": start.UTC(),
	})

	err := r.execute(cancel)
	result := r.result(time.Since(start))

	if err != nil {
		logger.Error(ctx, "run failed", "error", err, "completed", len(result.Completed), "duration_ms", result.Duration.Milliseconds())
		s.countRun(ctx, "failure")
		if span != nil {
			span.SetStatus(ports.SpanStatusError, err.Error())
		}
		publishEvent(ctx, s.events, logger, ports.EventRunFailed, map[string]interface{}{
			"run_id":    runID,
			"completed": len(result.Completed),
			"error":     err,
		})
		return result, err
	}

	logger.Info(ctx, "run completed", "completed", len(result.Completed), "dispatched", result.Dispatched, "duration_ms", result.Duration.Milliseconds())
	s.countRun(ctx, "success")
	if span != nil {
		span.SetAttribute("dispatched", result.Dispatched)
		span.SetStatus(ports.SpanStatusOK, "completed")
	}
	publishEvent(ctx, s.events, logger, ports.EventRunCompleted, map[string]interface{}{
		"run_id":      runID,
		"completed":   len(result.Completed),
		"dispatched":  result.Dispatched,
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

func (s *Scheduler) countRun(ctx context.Context, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncCounter(ctx, ports.MetricRuns, map[string]string{"status": status})
}

type schedulerEvent struct {
	eventType string
	payload   interface{}
}

func (e schedulerEvent) EventType() string    { return e.eventType }
func (e schedulerEvent) Payload() interface{} { return e.payload }

func publishEvent(ctx context.Context, publisher ports.EventPublisher, logger ports.Logger, eventType string, payload map[string]interface{}) {
	if publisher == nil {
		return
	}
	event := schedulerEvent{eventType: eventType, payload: payload}
	if err := publisher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn(ctx, "failed to publish scheduler event", "event_type", eventType, "error", err)
	}
}
