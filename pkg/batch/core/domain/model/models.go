package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

// JobStatus represents the state of a job execution.
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ExitStatus represents the detailed status upon job completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// FailureList holds a list of error messages. It is stored as a JSON array.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// JobInvocation is one request to run the import pipeline against one file and one database.
// Its ID is a random 128-bit token, so two invocations never share an identity even when
// they name the same file and database within the same millisecond.
type JobInvocation struct {
	ID       uuid.UUID
	Database dbctx.Identifier
	// SourcePath is the resolved path of the input file.
	SourcePath string
	// Filename is the name the caller supplied.
	Filename  string
	CreatedAt time.Time
	// Sequence is a process-local monotonic counter, useful for ordering log lines.
	Sequence uint64
}

// Key returns the string identity of the invocation, "<Database>-<ID>".
func (i JobInvocation) Key() string {
	return fmt.Sprintf("%s-%s", i.Database, i.ID)
}

// JobExecution records one run of an invocation in the target database's bookkeeping tables.
type JobExecution struct {
	ID            string
	InvocationID  string
	JobName       string
	Database      dbctx.Identifier
	SourcePath    string
	Status        JobStatus
	ExitStatus    ExitStatus
	StartTime     time.Time
	EndTime       *time.Time
	ReadCount     int
	WriteCount    int
	CommitCount   int
	RollbackCount int
	Failures      FailureList
	Version       int
	CreateTime    time.Time
	LastUpdated   time.Time
}

// NewJobExecution creates a JobExecution for inv in the STARTING state.
func NewJobExecution(jobName string, inv JobInvocation) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:           NewID(),
		InvocationID: inv.Key(),
		JobName:      jobName,
		Database:     inv.Database,
		SourcePath:   inv.SourcePath,
		Status:       BatchStatusStarting,
		ExitStatus:   ExitStatusUnknown,
		StartTime:    now,
		Failures:     FailureList{},
		CreateTime:   now,
		LastUpdated:  now,
	}
}

// MarkAsStarted moves the execution to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.Status = BatchStatusStarted
	je.ExitStatus = ExitStatusExecuting
	je.StartTime = time.Now()
	je.LastUpdated = je.StartTime
}

// MarkAsCompleted moves the execution to COMPLETED and stamps its end time.
func (je *JobExecution) MarkAsCompleted() {
	now := time.Now()
	je.Status = BatchStatusCompleted
	je.ExitStatus = ExitStatusCompleted
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsFailed moves the execution to FAILED, stamps its end time and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	now := time.Now()
	je.Status = BatchStatusFailed
	je.ExitStatus = ExitStatusFailed
	je.EndTime = &now
	je.LastUpdated = now
	if err != nil {
		je.Failures = append(je.Failures, exception.ExtractErrorMessage(err))
	}
}

// Duration returns the elapsed time of a finished execution, or zero.
func (je *JobExecution) Duration() time.Duration {
	if je.EndTime == nil {
		return 0
	}
	return je.EndTime.Sub(je.StartTime)
}
