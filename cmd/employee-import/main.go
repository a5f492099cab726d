package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"github.com/tigerroll/employee-import/internal/cli"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main runs the command line and exits with the code of the command that ran.
// SIGINT and SIGTERM cancel the context, which stops a running job at its next
// chunk boundary.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exitCode := 0
	rootCmd := cli.NewRootCommand(embeddedConfig, &exitCode)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		exitCode = 1
	}
	cancel()
	os.Exit(exitCode)
}
