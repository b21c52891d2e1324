package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	configPath string
	strict     bool
}

func newValidateCmd(app *AppContext) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse, compile and validate a network definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, app, opts)
		},
	}

	addConfigFlag(cmd, &opts.configPath)
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Treat unconnected required inputs as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, app *AppContext, opts *validateOptions) error {
	def, net, err := loadNetwork(opts.configPath, io.Discard)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid: %d nodes, %d edges\n", def.Name, net.NodeCount(), len(net.Edges))

	missing := net.ValidateRequiredInputs()
	if missing == nil {
		return nil
	}
	for _, w := range unwrapJoined(missing) {
		fmt.Fprintf(out, "warning: %v\n", w)
	}
	app.Logger.Warn(cmd.Context(), "network has unconnected required inputs", "definition", def.Name)
	if opts.strict {
		return missing
	}
	return nil
}

func unwrapJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
