package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
)

// Delay waits for a fixed duration, then forwards its optional input.
type Delay struct {
	operator.Descriptor
	duration time.Duration
}

func newDelay(params registry.Params) (operator.Operator, error) {
	d, err := durationParam(params, "duration")
	if err != nil {
		return nil, err
	}
	return NewDelay(d), nil
}

// NewDelay builds a Delay sleeping for d.
func NewDelay(d time.Duration) *Delay {
	return &Delay{
		Descriptor: operator.Descriptor{
			Op:      OpDelay,
			Inputs:  []operator.Port{{Name: "in", Type: port.TypeAny}},
			Outputs: []operator.Port{{Name: "out", Type: port.TypeAny}},
		},
		duration: d,
	}
}

// Execute implements operator.Operator.
func (d *Delay) Execute(ctx context.Context, in operator.Inputs, out *operator.Outputs) error {
	timer := time.NewTimer(d.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if in[0] != nil {
		out.Set(0, in[0])
	} else {
		out.Set(0, port.Inert{})
	}
	return nil
}

// Fail always returns an error. Its optional input lets it be wired after
// other nodes.
type Fail struct {
	operator.Descriptor
	message string
}

func newFail(params registry.Params) (operator.Operator, error) {
	msg, err := stringParam(params, "message", false)
	if err != nil {
		return nil, err
	}
	return NewFail(msg), nil
}

// NewFail builds a Fail returning message.
func NewFail(message string) *Fail {
	if message == "" {
		message = "operator failed"
	}
	return &Fail{
		Descriptor: operator.Descriptor{
			Op:     OpFail,
			Inputs: []operator.Port{{Name: "after", Type: port.TypeAny}},
		},
		message: message,
	}
}

// Execute implements operator.Operator.
func (f *Fail) Execute(context.Context, operator.Inputs, *operator.Outputs) error {
	return errors.New(f.message)
}

// Sink writes every value it receives to a writer.
type Sink struct {
	operator.Descriptor
	label  string
	writer io.Writer
}

func sinkFactory(w io.Writer) registry.Factory {
	var shared io.Writer = io.Discard
	if w != nil {
		shared = &lockedWriter{w: w}
	}
	return func(params registry.Params) (operator.Operator, error) {
		label, err := stringParam(params, "label", false)
		if err != nil {
			return nil, err
		}
		return NewSink(label, shared), nil
	}
}

// NewSink builds a Sink writing to w. A nil writer discards values.
func NewSink(label string, w io.Writer) *Sink {
	if w == nil {
		w = io.Discard
	}
	return &Sink{
		Descriptor: operator.Descriptor{
			Op:     OpSink,
			Inputs: []operator.Port{{Name: "in", Type: port.TypeAny, Required: true}},
		},
		label:  label,
		writer: w,
	}
}

// Execute implements operator.Operator.
func (s *Sink) Execute(_ context.Context, in operator.Inputs, _ *operator.Outputs) error {
	line := port.Format(in[0])
	if s.label != "" {
		line = s.label + ": " + line
	}
	if _, err := fmt.Fprintln(s.writer, line); err != nil {
		return fmt.Errorf("write sink: %w", err)
	}
	return nil
}

// lockedWriter serialises writes from sinks running on different workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
