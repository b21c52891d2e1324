package logging

import (
	"context"

	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

// NoOpLogger is the logger schedulers, checkpoint stores and the CLI fall
// back to when none is configured. Every entry is dropped.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(context.Context, string, ...interface{}) {}
func (n *NoOpLogger) Info(context.Context, string, ...interface{})  {}
func (n *NoOpLogger) Warn(context.Context, string, ...interface{})  {}
func (n *NoOpLogger) Error(context.Context, string, ...interface{}) {}

// With returns the receiver; fields have nowhere to go.
func (n *NoOpLogger) With(...interface{}) ports.Logger { return n }

// NewNoOpLogger returns a ports.Logger that drops every entry.
func NewNoOpLogger() ports.Logger {
	return &NoOpLogger{}
}
