package scheduler

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
)

// Checkpoint describes one completed node, with enough context to persist
// progress and resume a run later.
type Checkpoint struct {
	RunID       string
	Node        int
	Label       string
	Opcode      operator.Opcode
	Outputs     operator.Outputs
	CompletedAt time.Time
}

// CheckpointFunc is invoked once per completed node from the scheduler
// goroutine. Returned errors are logged and never abort the run.
type CheckpointFunc func(ctx context.Context, cp Checkpoint) error

// NodeOutput is pushed to the stream channel as soon as a node completes.
type NodeOutput struct {
	RunID   string
	Node    int
	Label   string
	Opcode  operator.Opcode
	Outputs operator.Outputs
}

// State is a phase of a run.
type State string

const (
	StateSeeding    State = "seeding"
	StateRunning    State = "running"
	StateDraining   State = "draining"
	StateTerminated State = "terminated"
)

// Result summarises a run.
type Result struct {
	RunID string
	// Completed lists node indices in completion order, resumed nodes first.
	Completed  []int
	Dispatched int
	Duration   time.Duration

	outputs map[int]operator.Outputs
}

// Output returns what node i produced during the run.
func (r *Result) Output(i int) (operator.Outputs, bool) {
	if r == nil {
		return operator.Outputs{}, false
	}
	out, ok := r.outputs[i]
	return out, ok
}
