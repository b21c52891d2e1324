package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

type taskResult struct {
	task    *TaskItem
	worker  int
	outputs operator.Outputs
	err     error
	elapsed time.Duration
}

// run holds the state of one Scheduler.Run call. Only the scheduler goroutine
// touches dispatched; in-degrees sit behind mu.
type run struct {
	ctx    context.Context
	s      *Scheduler
	net    *network.Network
	id     string
	logger ports.Logger

	outgoing [][]network.Edge
	incoming [][]network.Edge

	mu       sync.Mutex
	indegree []int

	completed  *CompletedNodes
	inflight   InFlightCounter
	dispatched int

	// ready is filled and closed during seeding. freed receives nodes whose
	// last dependency just completed. Both hold at most one entry per node,
	// as does results, so sends never block.
	ready   chan int
	freed   chan int
	results chan taskResult
}

func newRun(ctx context.Context, s *Scheduler, net *network.Network, id string, logger ports.Logger) *run {
	n := net.NodeCount()
	return &run{
		ctx:       ctx,
		s:         s,
		net:       net,
		id:        id,
		logger:    logger,
		outgoing:  net.Outgoing(),
		incoming:  net.Incoming(),
		completed: NewCompletedNodes(n),
		ready:     make(chan int, n),
		freed:     make(chan int, n),
		results:   make(chan taskResult, n),
	}
}

func (r *run) setState(state State) {
	r.logger.Debug(r.ctx, "scheduler state", "state", string(state))
	if r.s.onState != nil {
		r.s.onState(state)
	}
}

// execute drives the run through its phases. On error the run context is
// cancelled before draining so in-flight operators can stop early.
func (r *run) execute(cancel context.CancelFunc) error {
	r.setState(StateSeeding)
	r.seed()

	r.setState(StateRunning)
	err := r.loop()
	if err != nil {
		cancel()
	}

	r.setState(StateDraining)
	r.drain()

	r.setState(StateTerminated)
	return err
}

func (r *run) seed() {
	n := r.net.NodeCount()
	for idx, out := range r.s.resume {
		if idx >= 0 && idx < n {
			r.completed.Mark(idx, out)
		}
	}

	r.indegree = make([]int, n)
	for src, edges := range r.outgoing {
		if r.completed.Has(src) {
			continue
		}
		for _, e := range edges {
			r.indegree[e.Dest]++
		}
	}

	for i := 0; i < n; i++ {
		if r.indegree[i] == 0 && !r.completed.Has(i) {
			r.ready <- i
		}
	}
	close(r.ready)
}

func (r *run) loop() error {
	n := r.net.NodeCount()
	ready := (<-chan int)(r.ready)

	for {
		if r.completed.Len() == n {
			return nil
		}
		// Only completing tasks feed freed, so with nothing in flight, the
		// ready queue exhausted and freed empty, no node can become ready.
		if r.inflight.Load() == 0 && ready == nil && len(r.freed) == 0 {
			return opgrapherrors.NewConfigurationError("run stalled: %d of %d nodes completed", r.completed.Len(), n)
		}

		select {
		case idx, ok := <-ready:
			if !ok {
				ready = nil
				continue
			}
			if err := r.dispatch(idx); err != nil {
				return err
			}
		case idx := <-r.freed:
			if err := r.dispatch(idx); err != nil {
				return err
			}
		case res := <-r.results:
			if err := r.complete(res); err != nil {
				return err
			}
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}
}

func (r *run) dispatch(idx int) error {
	permit, err := r.s.limiter.Acquire(r.ctx)
	if err != nil {
		return err
	}
	node := r.net.Nodes[idx]
	task := NewTaskItem(r.ctx, idx, node, r.inputsFor(idx), permit, r.logger)

	r.dispatched++
	worker := r.dispatched
	r.observeInFlight(r.inflight.Inc())
	r.logger.Debug(r.ctx, "node dispatched", "node", idx, "label", task.Label, "opcode", string(node.Op.Opcode()), "worker", worker)

	go r.work(task, worker)
	return nil
}

// inputsFor gathers the outputs of completed predecessors, rebinding each to
// the destination port.
func (r *run) inputsFor(idx int) operator.Inputs {
	var in operator.Inputs
	for _, e := range r.incoming[idx] {
		if !e.SourcePort.Valid() || !e.DestPort.Valid() {
			continue
		}
		out, ok := r.completed.Outputs(e.Source)
		if !ok {
			continue
		}
		if v := out[e.SourcePort]; v != nil {
			in[e.DestPort] = port.Reslot(v, e.DestPort)
		}
	}
	return in
}

func (r *run) work(task *TaskItem, worker int) {
	res := taskResult{task: task, worker: worker}
	defer func() { r.results <- res }()
	defer ReleaseConcurrency(task, worker)

	ctx := r.ctx
	opcode := string(task.Op.Opcode())
	var span ports.Span
	if r.s.tracer != nil {
		var spanCtx context.Context
		spanCtx, span = r.s.tracer.StartSpan(ctx, "scheduler.node", "node", task.Node, "label", task.Label, "opcode", opcode)
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer span.End()
	}

	start := time.Now()
	res.outputs, res.err = invoke(ctx, task)
	res.elapsed = time.Since(start)

	status := "success"
	if res.err != nil {
		status = "failure"
	}
	if r.s.metrics != nil {
		r.s.metrics.IncCounter(ctx, ports.MetricNodeExecutions, map[string]string{"opcode": opcode, "status": status})
		r.s.metrics.ObserveHistogram(ctx, ports.MetricNodeDuration, res.elapsed.Seconds(), map[string]string{"opcode": opcode})
	}
	if span != nil {
		if res.err != nil {
			span.SetStatus(ports.SpanStatusError, res.err.Error())
		} else {
			span.SetStatus(ports.SpanStatusOK, status)
		}
	}
}

func invoke(ctx context.Context, task *TaskItem) (out operator.Outputs, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operator panicked: %v", p)
		}
	}()

	if err := operator.CheckInputs(task.Op, task.Inputs); err != nil {
		return out, err
	}
	if err := task.Op.Execute(ctx, task.Inputs, &out); err != nil {
		return out, err
	}
	for i, v := range out {
		if v != nil {
			out[i] = port.Reslot(v, port.Slot(i))
		}
	}
	return out, nil
}

func (r *run) complete(res taskResult) error {
	r.observeInFlight(r.inflight.Dec())
	ReleaseConcurrency(res.task, res.worker)

	idx := res.task.Node
	opcode := string(res.task.Op.Opcode())
	if res.err != nil {
		err := opgrapherrors.NewExecutionError(idx, opcode, res.err)
		r.logger.Error(r.ctx, "node failed", "node", idx, "label", res.task.Label, "opcode", opcode, "error", res.err)
		publishEvent(r.ctx, r.s.events, r.logger, ports.EventNodeFailed, map[string]interface{}{
			"run_id":      r.id,
			"node":        idx,
			"label":       res.task.Label,
			"opcode":      opcode,
			"duration_ms": res.elapsed.Milliseconds(),
			"error":       res.err,
		})
		return err
	}

	if !r.completed.Mark(idx, res.outputs) {
		r.logger.Warn(r.ctx, "node completed twice", "node", idx)
		return nil
	}
	r.logger.Debug(r.ctx, "node completed", "node", idx, "label", res.task.Label, "opcode", opcode, "duration_ms", res.elapsed.Milliseconds())
	publishEvent(r.ctx, r.s.events, r.logger, ports.EventNodeCompleted, map[string]interface{}{
		"run_id":      r.id,
		"node":        idx,
		"label":       res.task.Label,
		"opcode":      opcode,
		"duration_ms": res.elapsed.Milliseconds(),
	})

	r.saveCheckpoint(res)
	r.emit(res)
	r.releaseSuccessors(idx)
	return nil
}

func (r *run) releaseSuccessors(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.outgoing[idx] {
		if r.completed.Has(e.Dest) {
			continue
		}
		r.indegree[e.Dest]--
		if r.indegree[e.Dest] == 0 {
			r.freed <- e.Dest
		}
	}
}

func (r *run) saveCheckpoint(res taskResult) {
	if r.s.checkpoint == nil {
		return
	}
	cp := Checkpoint{
		RunID:       r.id,
		Node:        res.task.Node,
		Label:       res.task.Label,
		Opcode:      res.task.Op.Opcode(),
		Outputs:     res.outputs,
		CompletedAt: time.Now().UTC(),
	}
	// The run context is already cancelled while draining.
	if err := r.s.checkpoint(context.WithoutCancel(r.ctx), cp); err != nil {
		r.logger.Warn(r.ctx, "checkpoint failed", "node", cp.Node, "error", err)
	}
}

func (r *run) emit(res taskResult) {
	if r.s.stream == nil {
		return
	}
	out := NodeOutput{
		RunID:   r.id,
		Node:    res.task.Node,
		Label:   res.task.Label,
		Opcode:  res.task.Op.Opcode(),
		Outputs: res.outputs,
	}
	select {
	case r.s.stream <- out:
		return
	default:
	}
	select {
	case r.s.stream <- out:
	case <-r.ctx.Done():
	}
}

// drain collects results of tasks still in flight so every permit is
// returned before Run does. Nodes that still succeed are checkpointed and
// streamed like any other completion.
func (r *run) drain() {
	for r.inflight.Load() > 0 {
		res := <-r.results
		r.observeInFlight(r.inflight.Dec())
		ReleaseConcurrency(res.task, res.worker)
		if res.err != nil || !r.completed.Mark(res.task.Node, res.outputs) {
			continue
		}
		r.logger.Debug(r.ctx, "node completed while draining", "node", res.task.Node, "label", res.task.Label)
		r.saveCheckpoint(res)
		r.emit(res)
	}
}

func (r *run) observeInFlight(n int64) {
	if r.s.metrics == nil {
		return
	}
	r.s.metrics.SetGauge(r.ctx, ports.MetricInFlight, float64(n), nil)
}

func (r *run) result(elapsed time.Duration) *Result {
	order := r.completed.Order()
	outputs := make(map[int]operator.Outputs, len(order))
	for _, i := range order {
		out, _ := r.completed.Outputs(i)
		outputs[i] = out
	}
	return &Result{
		RunID:      r.id,
		Completed:  order,
		Dispatched: r.dispatched,
		Duration:   elapsed,
		outputs:    outputs,
	}
}
