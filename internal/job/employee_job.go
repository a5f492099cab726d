// Package job assembles the employee import job.
package job

import (
	"go.uber.org/fx"

	"github.com/tigerroll/employee-import/internal/domain/model"
	employeeReader "github.com/tigerroll/employee-import/internal/step/reader"
	employeeProcessor "github.com/tigerroll/employee-import/internal/step/processor"
	employeeWriter "github.com/tigerroll/employee-import/internal/step/writer"
	gormadapter "github.com/tigerroll/employee-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	itemWriter "github.com/tigerroll/employee-import/pkg/batch/component/step/writer"
	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	repository "github.com/tigerroll/employee-import/pkg/batch/core/domain/repository"
	jobRunner "github.com/tigerroll/employee-import/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	"github.com/tigerroll/employee-import/pkg/batch/engine/step/item"
	"github.com/tigerroll/employee-import/pkg/batch/engine/step/skip"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// StepName is the single step of the employee job.
const StepName = "saveEmployeesToDatabase"

// JobParams defines the dependencies of the employee job.
type JobParams struct {
	fx.In
	Cfg            *config.Config
	JobRepository  repository.JobRepository
	TxFactory      *gormadapter.TransactionManagerFactory
	Storage        *storage.Opener
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	JobListeners   []port.JobExecutionListener  `group:"job_listeners"`
	StepListeners  []port.StepExecutionListener `group:"step_listeners"`
	ChunkListeners []port.ChunkListener         `group:"chunk_listeners"`
	SkipListeners  []port.SkipListener          `group:"skip_listeners"`
}

// NewEmployeeJob builds the job that reads the configured input file and inserts
// every employee into the target database, one transaction per chunk.
func NewEmployeeJob(p JobParams) (*jobRunner.SimpleJob, error) {
	step, err := NewEmployeeStep(p)
	if err != nil {
		return nil, err
	}
	return jobRunner.NewSimpleJob(
		p.Cfg.Batch.JobName,
		[]port.Step{step},
		p.JobRepository,
		p.JobListeners,
		p.Cfg.Batch.ContinueOnError,
		p.MetricRecorder,
		p.Tracer,
	), nil
}

// NewEmployeeStep builds the chunk step reading employees, trimming them and
// writing them in the target database.
func NewEmployeeStep(p JobParams) (*item.ChunkStep[*model.Employee, *model.Employee], error) {
	batchCfg := p.Cfg.Batch

	policy, err := skip.NewDefaultSkipPolicyFactory().Create(batchCfg.ItemSkip.SkipLimit, batchCfg.ItemSkip.SkippableExceptions)
	if err != nil {
		return nil, err
	}

	stepListeners := append([]port.StepExecutionListener(nil), p.StepListeners...)
	skipListeners := append([]port.SkipListener(nil), p.SkipListeners...)
	if batchCfg.SkippedExport.Enabled {
		export, err := itemWriter.NewParquetSkipWriter(itemWriter.ParquetSkipWriterConfig{
			URI:         batchCfg.SkippedExport.URI,
			Compression: batchCfg.SkippedExport.Compression,
		}, p.Storage)
		if err != nil {
			return nil, exception.NewBatchError("job", "failed to configure the skipped record export", err, false, false)
		}
		stepListeners = append(stepListeners, export)
		skipListeners = append(skipListeners, export)
		logger.Infof("Skipped records of step '%s' are exported to '%s'.", StepName, batchCfg.SkippedExport.URI)
	}

	return item.NewChunkStep[*model.Employee, *model.Employee](
		StepName,
		employeeReader.NewEmployeeReader(p.Cfg, p.Storage),
		employeeProcessor.NewEmployeeProcessor(),
		employeeWriter.NewEmployeeWriter(),
		p.TxFactory.NewTransactionManager(p.Cfg.Infrastructure.TargetDBRef),
		p.JobRepository,
		item.StepOptions{
			ChunkSize:      batchCfg.ChunkSize,
			ChunkTimeout:   batchCfg.ChunkTimeout,
			SkipPolicy:     policy,
			StepListeners:  stepListeners,
			ChunkListeners: p.ChunkListeners,
			SkipListeners:  skipListeners,
			MetricRecorder: p.MetricRecorder,
			Tracer:         p.Tracer,
		},
	), nil
}
