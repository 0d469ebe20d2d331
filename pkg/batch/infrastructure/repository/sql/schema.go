package sql

import (
	"time"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// JobInvocationEntity is the persisted form of model.JobInvocation.
type JobInvocationEntity struct {
	ID         string           `gorm:"column:id;primaryKey;size:100"`
	Token      string           `gorm:"column:token;size:36;uniqueIndex"`
	Database   dbctx.Identifier `gorm:"column:database_id;size:20"`
	Filename   string           `gorm:"column:filename;size:255"`
	SourcePath string           `gorm:"column:source_path;size:1024"`
	Sequence   uint64           `gorm:"column:sequence"`
	CreateTime time.Time        `gorm:"column:create_time"`
}

func (JobInvocationEntity) TableName() string {
	return "batch_job_invocation"
}

// JobExecutionEntity is the persisted form of model.JobExecution.
// Version is the optimistic locking column.
type JobExecutionEntity struct {
	ID            string            `gorm:"column:id;primaryKey;size:36"`
	InvocationID  string            `gorm:"column:invocation_id;size:100;index"`
	JobName       string            `gorm:"column:job_name;size:100"`
	Database      dbctx.Identifier  `gorm:"column:database_id;size:20"`
	SourcePath    string            `gorm:"column:source_path;size:1024"`
	Status        model.JobStatus   `gorm:"column:status;size:20"`
	ExitStatus    model.ExitStatus  `gorm:"column:exit_status;size:20"`
	StartTime     time.Time         `gorm:"column:start_time"`
	EndTime       *time.Time        `gorm:"column:end_time"`
	ReadCount     int               `gorm:"column:read_count"`
	WriteCount    int               `gorm:"column:write_count"`
	CommitCount   int               `gorm:"column:commit_count"`
	RollbackCount int               `gorm:"column:rollback_count"`
	Failures      model.FailureList `gorm:"column:failures;type:text"`
	Version       int               `gorm:"column:version"`
	CreateTime    time.Time         `gorm:"column:create_time"`
	LastUpdated   time.Time         `gorm:"column:last_updated"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// Entities returns the models migrated into every persistence context.
func Entities() database.Models {
	return database.Models{
		&model.Record{},
		&JobInvocationEntity{},
		&JobExecutionEntity{},
	}
}
