package ports

import "context"

const (
	// EventRunStarted is emitted when the scheduler starts seeding a network.
	EventRunStarted = "run.started"
	// EventRunCompleted is emitted after every node completed.
	EventRunCompleted = "run.completed"
	// EventRunFailed is emitted when a run terminates with an error.
	EventRunFailed = "run.failed"
	// EventNodeCompleted is emitted when a node finishes successfully.
	EventNodeCompleted = "node.completed"
	// EventNodeFailed is emitted when a node returns an error.
	EventNodeFailed = "node.failed"
)

// DomainEvent represents a significant occurrence during a run.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// EventPublisher distributes events to interested subscribers. Publish blocks
// until all handlers ran. Implementations must be thread-safe.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type. Failures are returned so
// publishers can log them and continue delivering to remaining subscribers.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}
