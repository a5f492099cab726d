// Package cli provides the command-line interface for employee-import.
package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tigerroll/employee-import/internal/app"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

// Version is set at build time.
var Version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	configPath  string
	envFilePath string
}

// NewRootCommand builds the employee-import command tree. exitCode receives the
// exit code of the command that ran.
func NewRootCommand(embeddedConfig config.EmbeddedConfig, exitCode *int) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "employee-import",
		Short: "Import employees from a delimited file into a relational database",
		Long: `employee-import reads employee records (id, name, title, department, age)
from a delimited file and inserts them into the employee table, one transaction
per chunk. Progress is recorded so that a failed or stopped run resumes where the
last committed chunk ended.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML file applied over the built-in configuration")
	rootCmd.PersistentFlags().StringVar(&flags.envFilePath, "env-file", "", "path to a .env file (default ./.env)")

	rootCmd.AddCommand(
		newRunCommand(embeddedConfig, flags, exitCode),
		newExecutionsCommand(embeddedConfig, flags, exitCode),
	)
	return rootCmd
}

// baseOptions builds the application options shared by all commands.
func baseOptions(embeddedConfig config.EmbeddedConfig, flags *globalFlags) app.Options {
	return app.Options{
		EmbeddedConfig: embeddedConfig,
		EnvFilePath:    flags.envFilePath,
		ConfigPath:     flags.configPath,
		DBAdapters:     dbAdapters(os.Getenv("DB_ADAPTORS")),
	}
}

// dbAdapters splits the comma separated DB_ADAPTORS value.
func dbAdapters(value string) []string {
	var names []string
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
