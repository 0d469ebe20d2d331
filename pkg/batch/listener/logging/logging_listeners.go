// Package logging provides listeners that log job and chunk progress.
package logging

import (
	"context"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.With("invocation", jobExecution.InvocationID).With("db", jobExecution.Database).
		Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Source: %s", jobExecution.JobName, jobExecution.ID, jobExecution.SourcePath)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	log := logger.With("invocation", jobExecution.InvocationID).With("db", jobExecution.Database)
	if jobExecution.Status == model.BatchStatusFailed {
		log.Warnf("JobExecutionListener: AfterJob - JobName: %s, Status: %s, Failures: %v", jobExecution.JobName, jobExecution.Status, jobExecution.Failures)
		return
	}
	log.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, Read: %d, Write: %d, Duration: %s",
		jobExecution.JobName, jobExecution.Status, jobExecution.ReadCount, jobExecution.WriteCount, jobExecution.Duration())
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Chunk Listener ---

type LoggingChunkListener struct{}

func NewLoggingChunkListener() port.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, jobExecution *model.JobExecution, chunk int) {
	if jobExecution == nil {
		return
	}
	logger.Debugf("ChunkListener: BeforeChunk - Execution: %s, Chunk: %d", jobExecution.ID, chunk)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, jobExecution *model.JobExecution, chunk int, err error) {
	if jobExecution == nil {
		return
	}
	if err != nil {
		logger.Warnf("ChunkListener: AfterChunk - Execution: %s, Chunk: %d failed: %v", jobExecution.ID, chunk, err)
		return
	}
	logger.Debugf("ChunkListener: AfterChunk - Execution: %s, Chunk: %d, Read: %d, Write: %d", jobExecution.ID, chunk, jobExecution.ReadCount, jobExecution.WriteCount)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
