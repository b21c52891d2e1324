package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/checkpoint"
	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/metrics"
	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/tracing"
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/ports"
	"github.com/alexisbeaulieu97/opgraph/internal/scheduler"
)

type runOptions struct {
	configPath    string
	parallel      int
	checkpointDir string
	compression   string
	stream        bool
	resume        string
	runID         string
	metrics       bool
}

func newRunCmd(app *AppContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a network definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, app, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "Concurrency slots (0 uses the definition setting, then one per CPU)")
	cmd.Flags().StringVarP(&opts.checkpointDir, "checkpoint-dir", "d", "", "Persist completed nodes to this directory")
	cmd.Flags().StringVar(&opts.compression, "compression", "", "Checkpoint compression: none or zstd")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print each node's outputs as it completes")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "Resume the given run from its checkpoints")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Identifier for this run")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print scheduler metrics after the run")

	return cmd
}

func runRun(cmd *cobra.Command, app *AppContext, opts *runOptions) error {
	// Sinks and the stream printer write from different goroutines.
	out := &syncWriter{w: cmd.OutOrStdout()}
	def, net, err := loadNetwork(opts.configPath, out)
	if err != nil {
		return err
	}

	parallel := opts.parallel
	if parallel <= 0 {
		parallel = def.Settings.Parallel
	}
	checkpointDir := opts.checkpointDir
	if checkpointDir == "" {
		checkpointDir = def.Settings.CheckpointDir
	}
	compression := opts.compression
	if compression == "" {
		compression = def.Settings.Compression
	}
	withMetrics := opts.metrics || def.Settings.Metrics

	runID := opts.runID
	if opts.resume != "" {
		if opts.runID != "" && opts.runID != opts.resume {
			return newCommandError("run", "combining --resume and --run-id", errors.New("a resumed run keeps its identifier"), "Pass only --resume.")
		}
		runID = opts.resume
	}
	if runID == "" {
		runID = ports.GenerateCorrelationID()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = ports.WithCorrelationID(ctx, runID)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(app.Logger),
		scheduler.WithEvents(app.Events),
		scheduler.WithTracer(tracing.New(nil)),
		scheduler.WithParallelism(parallel),
		scheduler.WithRunID(runID),
	}

	if checkpointDir != "" {
		if err := checkpoint.ValidateRunID(runID); err != nil {
			return newCommandError("run", "checkpointing", err, "Choose a --run-id without '/' or spaces.")
		}
		store, err := checkpoint.Open(checkpoint.Options{
			Dir:         checkpointDir,
			SyncWrites:  true,
			Compression: checkpoint.Compression(compression),
			Logger:      app.Logger,
		})
		if err != nil {
			return newCommandError("run", "opening checkpoint store", err, "Check that the directory is writable and not used by another run.")
		}
		defer store.Close()
		schedOpts = append(schedOpts, scheduler.WithCheckpoint(checkpoint.Hook(store)))

		if opts.resume != "" {
			resumed, err := store.Resume(ctx, opts.resume, net)
			if err != nil {
				return newCommandError("run", "loading checkpoints", err, "List stored runs with 'opgraph checkpoints -d "+checkpointDir+"'. A run only resumes with the definition it was started from.")
			}
			schedOpts = append(schedOpts, scheduler.WithResume(resumed))
		}
	} else if opts.resume != "" {
		return newCommandError("run", "resuming", errors.New("no checkpoint directory"), "Pass --checkpoint-dir or set settings.checkpoint_dir.")
	}

	var collector *metrics.PrometheusCollector
	if withMetrics {
		collector = metrics.NewPrometheusCollector(app.Logger)
		schedOpts = append(schedOpts, scheduler.WithMetrics(collector))
	}

	var wg sync.WaitGroup
	var stream chan scheduler.NodeOutput
	if opts.stream {
		stream = make(chan scheduler.NodeOutput, net.NodeCount())
		schedOpts = append(schedOpts, scheduler.WithStream(stream))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range stream {
				fmt.Fprintf(out, "[%s] %s %s\n", item.Label, item.Opcode, formatOutputs(item.Outputs))
			}
		}()
	}

	result, runErr := scheduler.New(schedOpts...).Run(ctx, net)
	if stream != nil {
		close(stream)
		wg.Wait()
	}

	if result != nil {
		fmt.Fprintf(out, "run %s: %d/%d nodes completed in %s\n", result.RunID, len(result.Completed), net.NodeCount(), result.Duration.Round(time.Millisecond))
		if !opts.stream {
			if err := renderOutputs(out, net, result); err != nil {
				return err
			}
		}
	}
	if collector != nil {
		if err := renderMetrics(out, collector); err != nil {
			return err
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return newCommandError("run", "executing "+def.Name, runErr, "Resume with --resume "+runID+" if checkpoints were enabled.")
		}
		return runErr
	}
	return nil
}

func renderOutputs(w io.Writer, net *network.Network, result *scheduler.Result) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NODE\tOPCODE\tOUTPUTS")
	for _, idx := range result.Completed {
		node := net.Node(idx)
		out, _ := result.Output(idx)
		fmt.Fprintf(writer, "%s\t%s\t%s\n", node.Name(), node.Op.Opcode(), formatOutputs(out))
	}
	return writer.Flush()
}

func renderMetrics(w io.Writer, collector *metrics.PrometheusCollector) error {
	lines, err := collector.Summary()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "metrics:")
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}

// formatOutputs renders present outputs as "port=value" pairs.
func formatOutputs(out operator.Outputs) string {
	parts := make([]string, 0, len(out))
	for i, v := range out {
		if v == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d=%s", i, port.Format(v)))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
