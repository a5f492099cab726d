package cli

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/employee-import/internal/app"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

func newExecutionsCommand(embeddedConfig config.EmbeddedConfig, global *globalFlags, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "executions",
		Short: "Show the last unfinished execution of the job",
		Long: `Show the execution the next run would resume, with the progress of its steps.

Examples:
  employee-import executions
  employee-import executions --config prod.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*exitCode = app.ShowExecutions(cmd.Context(), baseOptions(embeddedConfig, global), cmd.OutOrStdout())
			return nil
		},
	}
}
