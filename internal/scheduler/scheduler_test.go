package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/operator/builtin"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// timeline records operator start and end events in order.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(ev string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, ev)
}

func (tl *timeline) index(ev string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for i, e := range tl.events {
		if e == ev {
			return i
		}
	}
	return -1
}

func (tl *timeline) count(ev string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	n := 0
	for _, e := range tl.events {
		if e == ev {
			n++
		}
	}
	return n
}

// inc adds one to its optional int input (zero when absent) and records its
// start and end on a timeline.
type inc struct {
	operator.Descriptor
	name string
	tl   *timeline
}

func newInc(name string, tl *timeline) *inc {
	return &inc{
		Descriptor: operator.Descriptor{
			Op:      "inc",
			Inputs:  []operator.Port{{Name: "in", Type: port.TypeInt}},
			Outputs: []operator.Port{{Name: "out", Type: port.TypeInt}},
		},
		name: name,
		tl:   tl,
	}
}

func (o *inc) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	o.tl.add("start " + o.name)
	defer o.tl.add("end " + o.name)

	var base int64
	if in[0] != nil {
		v, err := port.Into[port.Int](in[0], 0)
		if err != nil {
			return err
		}
		base = v.V
	}
	time.Sleep(5 * time.Millisecond)
	out.Set(0, port.Int{V: base + 1})
	return nil
}

// gate blocks until released and tracks how many gates run at once.
type gate struct {
	operator.Descriptor
	release <-chan struct{}
	active  *atomic.Int64
	peak    *atomic.Int64
}

func (g *gate) Execute(ctx context.Context, _ operator.Inputs, _ *operator.Outputs) error {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicky struct {
	operator.Descriptor
}

func (panicky) Execute(context.Context, operator.Inputs, *operator.Outputs) error {
	panic("boom")
}

func chain(tl *timeline, n int) *network.Network {
	b := network.NewBuilder()
	for i := 0; i < n; i++ {
		b.AddLabeled(string(rune('a'+i)), newInc(string(rune('a'+i)), tl))
	}
	for i := 0; i+1 < n; i++ {
		b.Connect(i, 0, i+1, 0)
	}
	return b.Build()
}

func requireAllPermitsFree(t *testing.T, s *Scheduler) {
	t.Helper()
	lim := s.Limiter()
	permits := make([]*Permit, 0, lim.Capacity())
	for i := 0; i < lim.Capacity(); i++ {
		p, ok := lim.TryAcquire()
		require.True(t, ok, "slot %d still held", i)
		permits = append(permits, p)
	}
	for _, p := range permits {
		p.Release()
	}
}

func TestReleaseConcurrencyFreesExactlyOneSlot(t *testing.T) {
	t.Parallel()

	buffer := logging.NewEventBuffer(0)
	logger := logging.NewBufferedLogger(buffer)
	lim := NewLimiter(3)
	node := &network.Node{Op: builtin.NewSplit()}

	tasks := make([]*TaskItem, 0, 3)
	for i := 0; i < 3; i++ {
		p, ok := lim.TryAcquire()
		require.True(t, ok)
		tasks = append(tasks, NewTaskItem(context.Background(), i, node, operator.Inputs{}, p, logger))
	}
	_, ok := lim.TryAcquire()
	require.False(t, ok)

	ReleaseConcurrency(tasks[1], 7)
	require.False(t, tasks[1].HoldsPermit())
	require.True(t, tasks[0].HoldsPermit())

	extra, ok := lim.TryAcquire()
	require.True(t, ok)
	_, ok = lim.TryAcquire()
	require.False(t, ok)

	ReleaseConcurrency(tasks[1], 7)
	_, ok = lim.TryAcquire()
	require.False(t, ok, "second release must not free another slot")

	require.Equal(t, 1, buffer.Count("concurrency slot released"))
	entries := buffer.Entries()
	require.Equal(t, 1, entries[0].Fields["node"])
	require.Equal(t, 7, entries[0].Fields["worker"])

	require.True(t, extra.Release())
	require.False(t, extra.Release())
	ReleaseConcurrency(nil, 0)
}

func TestEmptyNetworkTerminatesWithoutDispatch(t *testing.T) {
	t.Parallel()

	var states []State
	s := New(WithParallelism(2), WithStateHook(func(st State) { states = append(states, st) }))

	res, err := s.Run(context.Background(), network.NewBuilder().Build())
	require.NoError(t, err)
	require.Zero(t, res.Dispatched)
	require.Empty(t, res.Completed)
	require.Equal(t, []State{StateSeeding, StateRunning, StateDraining, StateTerminated}, states)
}

func TestChainCompletesInDependencyOrder(t *testing.T) {
	t.Parallel()

	tl := &timeline{}
	net := chain(tl, 3)
	require.NoError(t, net.Validate())

	s := New(WithParallelism(4))
	res, err := s.Run(context.Background(), net)
	require.NoError(t, err)

	require.Equal(t, []int{0, 1, 2}, res.Completed)
	require.Equal(t, 3, res.Dispatched)
	for _, name := range []string{"a", "b", "c"} {
		require.Equal(t, 1, tl.count("start "+name), name)
	}
	require.Less(t, tl.index("end a"), tl.index("start b"))
	require.Less(t, tl.index("end b"), tl.index("start c"))

	out, ok := res.Output(2)
	require.True(t, ok)
	require.Equal(t, port.Int{Port: 0, V: 3}, out[0])
	requireAllPermitsFree(t, s)
}

func TestInputsAreReboundToDestinationPort(t *testing.T) {
	t.Parallel()

	add, err := builtin.NewArithmetic(builtin.OpAdd)
	require.NoError(t, err)

	net := network.NewBuilder().
		AddNode(builtin.NewConst(port.Int{V: 2})).
		AddNode(builtin.NewConst(port.Int{V: 40})).
		AddNode(add).
		Connect(0, 0, 2, 0).
		Connect(1, 0, 2, 1).
		Build()
	require.NoError(t, net.Validate())

	res, err := New(WithParallelism(2)).Run(context.Background(), net)
	require.NoError(t, err)
	out, ok := res.Output(2)
	require.True(t, ok)
	require.Equal(t, port.Int{Port: 0, V: 42}, out[0])
}

func TestParallelismBoundsConcurrentTasks(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var active, peak atomic.Int64
	b := network.NewBuilder()
	for i := 0; i < 6; i++ {
		b.AddNode(&gate{Descriptor: operator.Descriptor{Op: "gate"}, release: release, active: &active, peak: &peak})
	}
	net := b.Build()

	s := New(WithParallelism(2))
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), net)
		done <- err
	}()

	require.Eventually(t, func() bool { return active.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	require.LessOrEqual(t, peak.Load(), int64(2))
	requireAllPermitsFree(t, s)
}

func TestFailureAbortsRunAndDrains(t *testing.T) {
	t.Parallel()

	// 0 fails, 1 waits until cancelled, 2 depends on 1 and never runs.
	net := network.NewBuilder().
		AddNode(builtin.NewFail("kaboom")).
		AddNode(builtin.NewDelay(time.Hour)).
		AddNode(builtin.NewDelay(0)).
		Connect(1, 0, 2, 0).
		Build()
	require.NoError(t, net.Validate())

	var events []string
	var mu sync.Mutex
	s := New(WithParallelism(4), WithStateHook(func(st State) {
		mu.Lock()
		events = append(events, string(st))
		mu.Unlock()
	}))

	res, err := s.Run(context.Background(), net)
	require.Error(t, err)

	var execErr *opgrapherrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, 0, execErr.Node)
	require.Equal(t, string(builtin.OpFail), execErr.Opcode)
	require.EqualError(t, execErr.Err, "kaboom")

	require.NotContains(t, res.Completed, 2)
	require.Contains(t, events, string(StateDraining))
	requireAllPermitsFree(t, s)
}

// stubborn sleeps without watching its context, then produces 7.
type stubborn struct {
	operator.Descriptor
	delay time.Duration
}

func (o stubborn) Execute(_ context.Context, _ operator.Inputs, out *operator.Outputs) error {
	time.Sleep(o.delay)
	out.Set(0, port.Int{V: 7})
	return nil
}

func TestNodesFinishingWhileDrainingAreCheckpointedAndStreamed(t *testing.T) {
	t.Parallel()

	slow := stubborn{
		Descriptor: operator.Descriptor{Op: "stubborn", Outputs: []operator.Port{{Name: "out", Type: port.TypeInt}}},
		delay:      50 * time.Millisecond,
	}
	// 0 is dispatched first and is still running when 1 fails.
	net := network.NewBuilder().
		AddLabeled("slow", slow).
		AddNode(builtin.NewFail("x")).
		Build()
	require.NoError(t, net.Validate())

	var mu sync.Mutex
	saved := map[int]Checkpoint{}
	hook := func(ctx context.Context, cp Checkpoint) error {
		mu.Lock()
		defer mu.Unlock()
		saved[cp.Node] = cp
		return ctx.Err()
	}
	stream := make(chan NodeOutput, 2)
	buffer := logging.NewEventBuffer(0)

	s := New(WithParallelism(2), WithCheckpoint(hook), WithStream(stream), WithLogger(logging.NewBufferedLogger(buffer)))
	res, err := s.Run(context.Background(), net)
	require.Error(t, err)
	var execErr *opgrapherrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, 1, execErr.Node)
	require.Equal(t, []int{0}, res.Completed)

	mu.Lock()
	cp, ok := saved[0]
	mu.Unlock()
	require.True(t, ok, "node completed during draining was not checkpointed")
	require.Equal(t, "slow", cp.Label)
	require.Equal(t, port.Int{Port: 0, V: 7}, cp.Outputs[0])
	require.Zero(t, buffer.Count("checkpoint failed"))

	close(stream)
	var streamed []int
	for out := range stream {
		streamed = append(streamed, out.Node)
	}
	require.Equal(t, []int{0}, streamed)
	requireAllPermitsFree(t, s)
}

func TestMissingRequiredInputIsPinError(t *testing.T) {
	t.Parallel()

	net := network.NewBuilder().AddNode(builtin.NewSink("x", nil)).Build()
	require.NoError(t, net.Validate())

	_, err := New().Run(context.Background(), net)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidPinAssignment)
	var execErr *opgrapherrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, string(builtin.OpSink), execErr.Opcode)
}

func TestOperatorPanicBecomesExecutionError(t *testing.T) {
	t.Parallel()

	net := network.NewBuilder().AddNode(panicky{operator.Descriptor{Op: "panicky"}}).Build()
	s := New(WithParallelism(1))
	_, err := s.Run(context.Background(), net)

	var execErr *opgrapherrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Contains(t, execErr.Error(), "operator panicked: boom")
	requireAllPermitsFree(t, s)
}

func TestCancellationStopsRun(t *testing.T) {
	t.Parallel()

	net := network.NewBuilder().AddNode(builtin.NewDelay(time.Hour)).Build()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	s := New(WithParallelism(1))
	_, err := s.Run(ctx, net)
	require.ErrorIs(t, err, context.Canceled)
	requireAllPermitsFree(t, s)
}

func TestStreamAndCheckpointSeeEveryNode(t *testing.T) {
	t.Parallel()

	tl := &timeline{}
	net := chain(tl, 3)

	stream := make(chan NodeOutput, 3)
	var mu sync.Mutex
	var saved []Checkpoint
	hook := func(_ context.Context, cp Checkpoint) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, cp)
		return errors.New("disk full")
	}

	buffer := logging.NewEventBuffer(0)
	s := New(WithStream(stream), WithCheckpoint(hook), WithRunID("run-1"), WithLogger(logging.NewBufferedLogger(buffer)))
	res, err := s.Run(context.Background(), net)
	require.NoError(t, err, "checkpoint errors must not abort the run")
	require.Equal(t, "run-1", res.RunID)
	close(stream)

	var streamed []int
	for out := range stream {
		require.Equal(t, "run-1", out.RunID)
		streamed = append(streamed, out.Node)
	}
	require.Equal(t, []int{0, 1, 2}, streamed)

	require.Len(t, saved, 3)
	require.Equal(t, "c", saved[2].Label)
	require.Equal(t, operator.Opcode("inc"), saved[2].Opcode)
	require.Equal(t, port.Int{Port: 0, V: 3}, saved[2].Outputs[0])
	require.Equal(t, 3, buffer.Count("checkpoint failed"))
}

func TestResumeSkipsCompletedNodes(t *testing.T) {
	t.Parallel()

	tl := &timeline{}
	net := chain(tl, 3)

	resume := map[int]operator.Outputs{
		0: {port.Int{V: 10}},
		1: {port.Int{V: 11}},
	}
	res, err := New(WithResume(resume)).Run(context.Background(), net)
	require.NoError(t, err)

	require.Zero(t, tl.count("start a"))
	require.Zero(t, tl.count("start b"))
	require.Equal(t, 1, tl.count("start c"))
	require.Equal(t, 1, res.Dispatched)
	require.ElementsMatch(t, []int{0, 1, 2}, res.Completed)

	out, _ := res.Output(2)
	require.Equal(t, port.Int{Port: 0, V: 12}, out[0])
}

func TestUnvalidatedCycleStalls(t *testing.T) {
	t.Parallel()

	tl := &timeline{}
	net := chain(tl, 2)
	net.Edges = append(net.Edges, network.Edge{Source: 1, SourcePort: 0, Dest: 0, DestPort: 0})

	_, err := New().Run(context.Background(), net)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidConfiguration)
	require.Contains(t, err.Error(), "run stalled")
}

func TestRunRejectsNilNetwork(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), nil)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidConfiguration)
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int
	observed map[string]int
	gauges   []float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]int{}, observed: map[string]int{}}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name+"/"+labels["status"]]++
}

func (m *recordingMetrics) SetGauge(_ context.Context, name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == ports.MetricInFlight {
		m.gauges = append(m.gauges, value)
	}
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed[name]++
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) Publish(_ context.Context, event ports.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, event.EventType())
	return nil
}

func (r *recordingEvents) Subscribe(string, ports.EventHandler) (ports.Subscription, error) {
	return nil, errors.New("not supported")
}

type recordingSpan struct {
	name   string
	status ports.SpanStatus
	ended  bool
}

func (s *recordingSpan) SetAttribute(string, interface{}) {}
func (s *recordingSpan) SetStatus(status ports.SpanStatus, _ string) {
	s.status = status
}
func (s *recordingSpan) End() { s.ended = true }

type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordingSpan
}

func (tr *recordingTracer) StartSpan(ctx context.Context, name string, _ ...interface{}) (context.Context, ports.Span) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	span := &recordingSpan{name: name}
	tr.spans = append(tr.spans, span)
	return ctx, span
}

func TestObservabilityHooks(t *testing.T) {
	t.Parallel()

	tl := &timeline{}
	net := chain(tl, 2)

	metrics := newRecordingMetrics()
	events := &recordingEvents{}
	tracer := &recordingTracer{}
	_, err := New(WithMetrics(metrics), WithEvents(events), WithTracer(tracer)).Run(context.Background(), net)
	require.NoError(t, err)

	require.Equal(t, 2, metrics.counters[ports.MetricNodeExecutions+"/success"])
	require.Equal(t, 1, metrics.counters[ports.MetricRuns+"/success"])
	require.Equal(t, 2, metrics.observed[ports.MetricNodeDuration])
	require.Equal(t, float64(0), metrics.gauges[len(metrics.gauges)-1])

	require.Equal(t, []string{
		ports.EventRunStarted,
		ports.EventNodeCompleted,
		ports.EventNodeCompleted,
		ports.EventRunCompleted,
	}, events.types)

	require.Len(t, tracer.spans, 3)
	for _, span := range tracer.spans {
		require.True(t, span.ended, span.name)
		require.Equal(t, ports.SpanStatusOK, span.status, span.name)
	}
	require.Equal(t, "scheduler.run", tracer.spans[0].name)
}
