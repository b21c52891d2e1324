package main

import (
	"io"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/events"
	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/opgraph/internal/logger"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
)

// AppContext bundles long-lived services created at startup. Until flags are
// parsed the logger writes into Buffer; configureLogging swaps in the real
// logger and replays what was buffered.
type AppContext struct {
	Logger    ports.Logger
	Events    *events.LoggingPublisher
	Buffer    *logging.EventBuffer
	LogWriter io.Writer
}

func newAppContext(logWriter io.Writer) *AppContext {
	buffer := logging.NewEventBuffer(0)
	buffered := logging.NewBufferedLogger(buffer)
	return &AppContext{
		Logger:    buffered,
		Events:    events.NewLoggingPublisher(buffered),
		Buffer:    buffer,
		LogWriter: logWriter,
	}
}

// configureLogging builds the zerolog-backed logger from the global flags.
func (a *AppContext) configureLogging(flags *rootFlags, logWriter io.Writer) error {
	if logWriter != nil {
		a.LogWriter = logWriter
	}

	level := "info"
	if flags.verbose {
		level = "debug"
	}

	var jsonOutput bool
	switch flags.logFormat {
	case "json":
		jsonOutput = true
	case "console":
	case "", "auto":
		jsonOutput = !logger.IsTerminal(a.LogWriter)
	default:
		return newCommandError("configure logging", "parsing --log-format", errUnknownLogFormat(flags.logFormat), "Use one of: auto, json, console.")
	}

	log, err := logging.New(logging.Options{
		Writer:    a.LogWriter,
		Level:     level,
		JSON:      jsonOutput,
		Layer:     "cli",
		Component: "opgraph",
	})
	if err != nil {
		return err
	}

	a.Logger = log
	a.Events = events.NewLoggingPublisher(log.With("component", "events"))
	a.Buffer.Flush(log)
	return nil
}

// fallbackLogger is used when the command failed before logging was
// configured.
func (a *AppContext) fallbackLogger() ports.Logger {
	if _, buffered := a.Logger.(*logging.BufferedLogger); !buffered {
		return a.Logger
	}
	log, err := logging.New(logging.Options{Writer: a.LogWriter, Layer: "cli"})
	if err != nil {
		return logging.NewNoOpLogger()
	}
	return log
}
