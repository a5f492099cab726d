package sql

import (
	"time"

	model "github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID          string
	JobName     string
	Status      model.BatchStatus
	StartTime   time.Time
	EndTime     *time.Time
	ExitMessage string
	Failures    model.FailureList
	ResumedFrom string
	Version     int
	CreateTime  time.Time
	LastUpdated time.Time
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID                      string
	JobExecutionID          string
	StepName                string
	Status                  model.BatchStatus
	StartTime               time.Time
	EndTime                 *time.Time
	ExitMessage             string
	Failures                model.FailureList
	ReadCount               int
	WriteCount              int
	CommitCount             int
	RollbackCount           int
	ReadSkipCount           int
	ProcessSkipCount        int
	WriteSkipCount          int
	StartOffset             int64
	LastCommittedReadOffset int64
	Version                 int
	LastUpdated             time.Time
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
