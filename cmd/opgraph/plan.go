package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type planOptions struct {
	configPath string
}

func newPlanCmd(app *AppContext) *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the execution levels of a network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, app, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)

	return cmd
}

func runPlan(cmd *cobra.Command, app *AppContext, opts *planOptions) error {
	def, net, err := loadNetwork(opts.configPath, io.Discard)
	if err != nil {
		return err
	}
	levels, err := net.TopologicalLevels()
	if err != nil {
		return err
	}
	app.Logger.Debug(cmd.Context(), "plan computed", "definition", def.Name, "levels", len(levels))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Execution plan for %s (%d nodes):\n", def.Name, net.NodeCount())
	for i, level := range levels {
		names := make([]string, 0, len(level))
		for _, idx := range level {
			node := net.Node(idx)
			names = append(names, fmt.Sprintf("%s (%s)", node.Name(), node.Op.Opcode()))
		}
		fmt.Fprintf(out, "  Level %d: %s\n", i, strings.Join(names, ", "))
	}
	return nil
}
