package sql

import (
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

func fromDomainJobInvocation(inv model.JobInvocation) *JobInvocationEntity {
	return &JobInvocationEntity{
		ID:         inv.Key(),
		Token:      inv.ID.String(),
		Database:   inv.Database,
		Filename:   inv.Filename,
		SourcePath: inv.SourcePath,
		Sequence:   inv.Sequence,
		CreateTime: inv.CreatedAt,
	}
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	if je == nil {
		return nil
	}
	failures := je.Failures
	if failures == nil {
		failures = model.FailureList{}
	}
	return &JobExecutionEntity{
		ID:            je.ID,
		InvocationID:  je.InvocationID,
		JobName:       je.JobName,
		Database:      je.Database,
		SourcePath:    je.SourcePath,
		Status:        je.Status,
		ExitStatus:    je.ExitStatus,
		StartTime:     je.StartTime,
		EndTime:       je.EndTime,
		ReadCount:     je.ReadCount,
		WriteCount:    je.WriteCount,
		CommitCount:   je.CommitCount,
		RollbackCount: je.RollbackCount,
		Failures:      failures,
		Version:       je.Version,
		CreateTime:    je.CreateTime,
		LastUpdated:   je.LastUpdated,
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	if entity == nil {
		return nil
	}
	return &model.JobExecution{
		ID:            entity.ID,
		InvocationID:  entity.InvocationID,
		JobName:       entity.JobName,
		Database:      entity.Database,
		SourcePath:    entity.SourcePath,
		Status:        entity.Status,
		ExitStatus:    entity.ExitStatus,
		StartTime:     entity.StartTime,
		EndTime:       entity.EndTime,
		ReadCount:     entity.ReadCount,
		WriteCount:    entity.WriteCount,
		CommitCount:   entity.CommitCount,
		RollbackCount: entity.RollbackCount,
		Failures:      entity.Failures,
		Version:       entity.Version,
		CreateTime:    entity.CreateTime,
		LastUpdated:   entity.LastUpdated,
	}
}

// executionColumns returns the mutable columns of je for a versioned update.
func executionColumns(je *model.JobExecution, version int) map[string]interface{} {
	failures := je.Failures
	if failures == nil {
		failures = model.FailureList{}
	}
	return map[string]interface{}{
		"status":         string(je.Status),
		"exit_status":    string(je.ExitStatus),
		"start_time":     je.StartTime,
		"end_time":       je.EndTime,
		"read_count":     je.ReadCount,
		"write_count":    je.WriteCount,
		"commit_count":   je.CommitCount,
		"rollback_count": je.RollbackCount,
		"failures":       failures,
		"version":        version,
		"last_updated":   je.LastUpdated,
	}
}
