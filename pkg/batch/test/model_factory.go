package test

import (
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// NewTestInvocation creates an invocation of filename against database.
func NewTestInvocation(database dbctx.Identifier, filename string) model.JobInvocation {
	return model.JobInvocation{
		ID:         uuid.New(),
		Database:   database,
		Filename:   filename,
		SourcePath: filename,
		CreatedAt:  time.Now(),
	}
}

// NewTestJobExecution creates a started execution of inv.
func NewTestJobExecution(jobName string, inv model.JobInvocation) *model.JobExecution {
	je := model.NewJobExecution(jobName, inv)
	je.MarkAsStarted()
	return je
}

// NewTestRecords creates n upper-cased records processed at ts.
func NewTestRecords(n int, ts time.Time) []*model.Record {
	records := make([]*model.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &model.Record{
			Name:        string(rune('A'+i%26)) + "USER",
			Age:         20 + i,
			Email:       string(rune('a'+i%26)) + "user@example.com",
			ProcessedAt: ts,
		})
	}
	return records
}
