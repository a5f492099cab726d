package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go.uber.org/fx"

	usecase "github.com/tigerroll/employee-import/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// ShowExecutions prints the last unfinished execution of the configured job to out.
// It returns 0 when the lookup succeeded, whether or not there is one.
func ShowExecutions(ctx context.Context, opts Options, out io.Writer) int {
	var (
		cfg      *config.Config
		explorer usecase.JobExplorer
	)
	app := fx.New(
		infrastructureOptions(opts),
		fx.Provide(fx.Annotate(usecase.NewSimpleJobExplorer, fx.As(new(usecase.JobExplorer)))),
		fx.Populate(&cfg, &explorer),
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to initialize the application: %v", err)
		return 1
	}
	if err := start(ctx, app); err != nil {
		return 1
	}
	defer stop(app)

	jobExecution, err := explorer.GetLastUnfinishedExecution(ctx, cfg.Batch.JobName)
	if err != nil {
		logger.Errorf("Failed to look up executions of '%s': %v", cfg.Batch.JobName, err)
		return 1
	}
	if err := WriteExecution(out, cfg.Batch.JobName, jobExecution); err != nil {
		logger.Errorf("Failed to print executions: %v", err)
		return 1
	}
	return 0
}

// WriteExecution renders an execution and its steps as a table. A nil execution
// prints a single line saying there is nothing to resume.
func WriteExecution(out io.Writer, jobName string, je *model.JobExecution) error {
	if je == nil {
		_, err := fmt.Fprintf(out, "No unfinished execution of job '%s'.\n", jobName)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RUN ID\tJOB\tSTATUS\tSTARTED\tLAST UPDATED\tEXIT MESSAGE\n")
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		je.ID, je.JobName, je.Status, formatTime(je.StartTime), formatTime(je.LastUpdated), je.ExitMessage)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "STEP\tSTATUS\tREAD\tWRITE\tSKIP\tCOMMIT\tROLLBACK\tOFFSET\n")
	for _, se := range je.StepExecutions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			se.StepName, se.Status, se.ReadCount, se.WriteCount, se.SkipCount(), se.CommitCount, se.RollbackCount, se.LastCommittedReadOffset)
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
