package cli

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/employee-import/internal/app"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

// runFlags override configuration values for a single run.
type runFlags struct {
	input     string
	chunkSize int
	noRestart bool
}

// apply copies the flags that were set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("input") {
		cfg.Input.Path = f.input
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.Batch.ChunkSize = f.chunkSize
	}
	if f.noRestart {
		cfg.Batch.Restart = false
	}
}

func newRunCommand(embeddedConfig config.EmbeddedConfig, global *globalFlags, exitCode *int) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the employee import job",
		Long: `Run the employee import job once.

The last unfinished execution is resumed from its committed offset unless
--no-restart is given. SIGINT or SIGTERM stops the job after the chunk in
flight.

Examples:
  employee-import run
  employee-import run --input employees.csv --chunk-size 100
  employee-import run --input gs://bucket/employees.csv --config prod.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := baseOptions(embeddedConfig, global)
			opts.Override = func(cfg *config.Config) { flags.apply(cmd, cfg) }
			*exitCode = app.RunApplication(cmd.Context(), opts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "input file: a local path or gs://bucket/object")
	cmd.Flags().IntVarP(&flags.chunkSize, "chunk-size", "n", 0, "records per chunk transaction")
	cmd.Flags().BoolVar(&flags.noRestart, "no-restart", false, "start from the beginning instead of resuming an unfinished execution")
	return cmd
}
