package sql

import (
	"time"

	"github.com/tigerroll/employee-import/pkg/batch/core/domain/model"
)

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	return &JobExecutionEntity{
		ID:          je.ID,
		JobName:     je.JobName,
		Status:      je.Status,
		StartTime:   je.StartTime,
		EndTime:     je.EndTime,
		ExitMessage: je.ExitMessage,
		Failures:    je.Failures,
		ResumedFrom: je.ResumedFrom,
		Version:     je.Version,
		CreateTime:  je.CreateTime,
		LastUpdated: je.LastUpdated,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	return &model.JobExecution{
		ID:          entity.ID,
		JobName:     entity.JobName,
		Status:      entity.Status,
		StartTime:   entity.StartTime,
		EndTime:     entity.EndTime,
		ExitMessage: entity.ExitMessage,
		Failures:    entity.Failures,
		ResumedFrom: entity.ResumedFrom,
		Version:     entity.Version,
		CreateTime:  entity.CreateTime,
		LastUpdated: entity.LastUpdated,
		Stop:        &model.StopSignal{},
	}
}

// jobExecutionColumns lists the mutable columns written by an update.
func jobExecutionColumns(je *model.JobExecution, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":       je.Status,
		"end_time":     je.EndTime,
		"exit_message": je.ExitMessage,
		"failures":     je.Failures,
		"resumed_from": je.ResumedFrom,
		"version":      je.Version + 1,
		"last_updated": now,
	}
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	return &StepExecutionEntity{
		ID:                      se.ID,
		JobExecutionID:          se.JobExecutionID,
		StepName:                se.StepName,
		Status:                  se.Status,
		StartTime:               se.StartTime,
		EndTime:                 se.EndTime,
		ExitMessage:             se.ExitMessage,
		Failures:                se.Failures,
		ReadCount:               se.ReadCount,
		WriteCount:              se.WriteCount,
		CommitCount:             se.CommitCount,
		RollbackCount:           se.RollbackCount,
		ReadSkipCount:           se.ReadSkipCount,
		ProcessSkipCount:        se.ProcessSkipCount,
		WriteSkipCount:          se.WriteSkipCount,
		StartOffset:             se.StartOffset,
		LastCommittedReadOffset: se.LastCommittedReadOffset,
		Version:                 se.Version,
		LastUpdated:             se.LastUpdated,
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	return &model.StepExecution{
		ID:                      entity.ID,
		JobExecutionID:          entity.JobExecutionID,
		StepName:                entity.StepName,
		Status:                  entity.Status,
		StartTime:               entity.StartTime,
		EndTime:                 entity.EndTime,
		ExitMessage:             entity.ExitMessage,
		Failures:                entity.Failures,
		ReadCount:               entity.ReadCount,
		WriteCount:              entity.WriteCount,
		CommitCount:             entity.CommitCount,
		RollbackCount:           entity.RollbackCount,
		ReadSkipCount:           entity.ReadSkipCount,
		ProcessSkipCount:        entity.ProcessSkipCount,
		WriteSkipCount:          entity.WriteSkipCount,
		StartOffset:             entity.StartOffset,
		LastCommittedReadOffset: entity.LastCommittedReadOffset,
		Version:                 entity.Version,
		LastUpdated:             entity.LastUpdated,
	}
}

func stepExecutionColumns(se *model.StepExecution, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":                     se.Status,
		"end_time":                   se.EndTime,
		"exit_message":               se.ExitMessage,
		"failures":                   se.Failures,
		"read_count":                 se.ReadCount,
		"write_count":                se.WriteCount,
		"commit_count":               se.CommitCount,
		"rollback_count":             se.RollbackCount,
		"read_skip_count":            se.ReadSkipCount,
		"process_skip_count":         se.ProcessSkipCount,
		"write_skip_count":           se.WriteSkipCount,
		"start_offset":               se.StartOffset,
		"last_committed_read_offset": se.LastCommittedReadOffset,
		"version":                    se.Version + 1,
		"last_updated":               now,
	}
}
