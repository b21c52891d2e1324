package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose   bool
	logFormat string
}

func newRootCmd(app *AppContext) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "opgraph",
		Short:         "opgraph validates and runs typed dataflow networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.configureLogging(flags, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "auto", "Log format: auto, json or console")

	cmd.AddCommand(newValidateCmd(app))
	cmd.AddCommand(newPlanCmd(app))
	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newCheckpointsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
