package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/opgraph/internal/infrastructure/checkpoint"
	"github.com/alexisbeaulieu97/opgraph/pkg/diff"
)

type checkpointsOptions struct {
	dir     string
	runID   string
	compare string
	delete  bool
}

func newCheckpointsCmd(app *AppContext) *cobra.Command {
	opts := &checkpointsOptions{}

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List or delete stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpoints(cmd, app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Checkpoint directory")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show the checkpoints of one run")
	cmd.Flags().StringVar(&opts.compare, "compare", "", "Diff the outputs of --run against another run")
	cmd.Flags().BoolVar(&opts.delete, "delete", false, "Delete the checkpoints of --run")
	cmd.MarkFlagRequired("dir") //nolint:errcheck

	return cmd
}

func runCheckpoints(cmd *cobra.Command, app *AppContext, opts *checkpointsOptions) error {
	if (opts.delete || opts.compare != "") && strings.TrimSpace(opts.runID) == "" {
		return newCommandError("inspect checkpoints", "no run selected", fmt.Errorf("--delete and --compare need --run"), "Pick a run from 'opgraph checkpoints -d "+opts.dir+"'.")
	}

	if info, err := os.Stat(opts.dir); err != nil || !info.IsDir() {
		return newCommandError("list checkpoints", "reading "+opts.dir, fmt.Errorf("not a checkpoint directory"), "Pass the directory used with 'opgraph run --checkpoint-dir'.")
	}

	store, err := checkpoint.Open(checkpoint.Options{Dir: opts.dir, Logger: app.Logger})
	if err != nil {
		return newCommandError("list checkpoints", "opening checkpoint store", err, "Check the --dir path.")
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.runID == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No checkpoints stored.")
			return nil
		}
		for _, id := range runs {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	if opts.delete {
		n, err := store.DeleteRun(ctx, opts.runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d checkpoints of run %s.\n", n, opts.runID)
		return nil
	}

	records, err := store.List(ctx, opts.runID)
	if err != nil {
		return err
	}

	if opts.compare != "" {
		other, err := store.List(ctx, opts.compare)
		if err != nil {
			return err
		}
		return renderComparison(out, opts.runID, records, opts.compare, other)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No checkpoints for run %s.\n", opts.runID)
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NODE\tLABEL\tOPCODE\tCOMPLETED\tOUTPUTS")
	for _, rec := range records {
		outputs, err := rec.DecodeOutputs()
		if err != nil {
			return err
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", rec.Node, valueOrFallback(rec.Label, "-"), rec.Opcode, rec.CompletedAt.Format(time.RFC3339), formatOutputs(outputs))
	}
	return writer.Flush()
}

func renderComparison(w io.Writer, runA string, a []checkpoint.Record, runB string, b []checkpoint.Record) error {
	linesA, err := recordLines(a)
	if err != nil {
		return err
	}
	linesB, err := recordLines(b)
	if err != nil {
		return err
	}
	result := diff.Lines(linesA, linesB, "run "+runA, "run "+runB)
	if result == "" {
		fmt.Fprintf(w, "Runs %s and %s recorded identical outputs.\n", runA, runB)
		return nil
	}
	_, err = io.WriteString(w, result)
	return err
}

func recordLines(records []checkpoint.Record) ([]string, error) {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		outputs, err := rec.DecodeOutputs()
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%d %s %s %s", rec.Node, valueOrFallback(rec.Label, "-"), rec.Opcode, formatOutputs(outputs)))
	}
	return lines, nil
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
