package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

// TaskItem is one dispatched execution of a node. It holds the node's
// concurrency permit until ReleaseConcurrency is called.
type TaskItem struct {
	Node   int
	Label  string
	Op     operator.Operator
	Inputs operator.Inputs

	ctx    context.Context
	mu     sync.Mutex
	permit *Permit
	logger ports.Logger
}

// NewTaskItem builds a task owning permit.
func NewTaskItem(ctx context.Context, index int, node *network.Node, inputs operator.Inputs, permit *Permit, logger ports.Logger) *TaskItem {
	if ctx == nil {
		ctx = context.Background()
	}
	return &TaskItem{
		ctx:    ctx,
		Node:   index,
		Label:  node.Name(),
		Op:     node.Op,
		Inputs: inputs,
		permit: permit,
		logger: logger,
	}
}

// HoldsPermit reports whether the task still owns its slot.
func (t *TaskItem) HoldsPermit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permit != nil
}

// ReleaseConcurrency returns the task's slot to the limiter. Calls after the
// first are no-ops, so it is safe on every exit path.
func ReleaseConcurrency(task *TaskItem, workerID int) {
	if task == nil {
		return
	}
	task.mu.Lock()
	permit := task.permit
	task.permit = nil
	task.mu.Unlock()

	if permit == nil || !permit.Release() {
		return
	}
	if task.logger != nil {
		task.logger.Debug(task.ctx, "concurrency slot released", "node", task.Node, "worker", workerID)
	}
}

// InFlightCounter counts dispatched tasks that have not completed.
type InFlightCounter struct {
	n atomic.Int64
}

// Inc records a dispatch and returns the new count.
func (c *InFlightCounter) Inc() int64 { return c.n.Add(1) }

// Dec records a completion and returns the new count.
func (c *InFlightCounter) Dec() int64 { return c.n.Add(-1) }

// Load returns the current count.
func (c *InFlightCounter) Load() int64 { return c.n.Load() }

// CompletedNodes records which nodes finished and what they produced. It only
// grows during a run.
type CompletedNodes struct {
	mu      sync.Mutex
	outputs map[int]operator.Outputs
	order   []int
}

// NewCompletedNodes returns an empty record sized for n nodes.
func NewCompletedNodes(n int) *CompletedNodes {
	return &CompletedNodes{outputs: make(map[int]operator.Outputs, n)}
}

// Mark records node i as completed. It reports false if i was already marked,
// in which case the stored outputs are kept.
func (c *CompletedNodes) Mark(i int, out operator.Outputs) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, done := c.outputs[i]; done {
		return false
	}
	c.outputs[i] = out
	c.order = append(c.order, i)
	return true
}

// Has reports whether node i completed.
func (c *CompletedNodes) Has(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.outputs[i]
	return ok
}

// Outputs returns what node i produced.
func (c *CompletedNodes) Outputs(i int) (operator.Outputs, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.outputs[i]
	return out, ok
}

// Len returns the number of completed nodes.
func (c *CompletedNodes) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Order returns node indices in completion order.
func (c *CompletedNodes) Order() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.order...)
}

// Sorted returns completed node indices in ascending order.
func (c *CompletedNodes) Sorted() []int {
	out := c.Order()
	sort.Ints(out)
	return out
}
