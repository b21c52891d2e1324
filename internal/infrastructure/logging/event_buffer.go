package logging

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

const defaultBufferLimit = 1000

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func (l logLevel) String() string {
	switch l {
	case levelDebug:
		return "debug"
	case levelWarn:
		return "warn"
	case levelError:
		return "error"
	default:
		return "info"
	}
}

type bufferedEntry struct {
	ctx    context.Context
	level  logLevel
	msg    string
	fields []interface{}
}

// Entry is a snapshot of one buffered log call.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// EventBuffer keeps the most recent log calls in memory, either to replay them
// once the real logger is configured or to inspect them directly.
type EventBuffer struct {
	mu     sync.Mutex
	limit  int
	events []bufferedEntry
}

// NewEventBuffer creates a buffer with the provided capacity (defaults to 1000).
func NewEventBuffer(limit int) *EventBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &EventBuffer{
		limit:  limit,
		events: make([]bufferedEntry, 0, limit),
	}
}

func (b *EventBuffer) add(entry bufferedEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == b.limit {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = entry
		return
	}
	b.events = append(b.events, entry)
}

// Entries returns the buffered calls in order without draining them.
func (b *EventBuffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.events))
	for _, e := range b.events {
		fields := make(map[string]interface{}, len(e.fields)/2)
		for i := 0; i+1 < len(e.fields); i += 2 {
			if key, ok := e.fields[i].(string); ok {
				fields[key] = e.fields[i+1]
			}
		}
		out = append(out, Entry{Level: e.level.String(), Message: e.msg, Fields: fields})
	}
	return out
}

// Count returns how many buffered entries carry msg.
func (b *EventBuffer) Count(msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, e := range b.events {
		if e.msg == msg {
			n++
		}
	}
	return n
}

// Flush replays buffered events using the provided logger, preserving ordering.
func (b *EventBuffer) Flush(delegate ports.Logger) {
	if delegate == nil {
		return
	}
	b.mu.Lock()
	events := make([]bufferedEntry, len(b.events))
	copy(events, b.events)
	b.events = b.events[:0]
	b.mu.Unlock()

	for _, entry := range events {
		switch entry.level {
		case levelDebug:
			delegate.Debug(entry.ctx, entry.msg, entry.fields...)
		case levelWarn:
			delegate.Warn(entry.ctx, entry.msg, entry.fields...)
		case levelError:
			delegate.Error(entry.ctx, entry.msg, entry.fields...)
		default:
			delegate.Info(entry.ctx, entry.msg, entry.fields...)
		}
	}
}
