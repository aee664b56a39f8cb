// Package logging provides listeners that log job, step and chunk progress.
package logging

import (
	"context"
	"strings"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobExecutionListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %+v", jobExecution.JobName, jobExecution.ID, jobExecution.Parameters)
}

// AfterJob logs the final status and one line per step, including abandoned ones.
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s", jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
	for _, se := range jobExecution.StepExecutions {
		if len(se.Failures) > 0 {
			logger.Errorf("  %s failures: %s", se.String(), strings.Join(se.Failures, "; "))
			continue
		}
		logger.Infof("  %s", se.String())
	}
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

type LoggingStepListener struct{}

func NewLoggingStepListener() port.StepExecutionListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s", stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus)
}

var _ port.StepExecutionListener = (*LoggingStepListener)(nil)

type LoggingChunkListener struct{}

func NewLoggingChunkListener() port.ChunkListener {
	return &LoggingChunkListener{}
}

func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: BeforeChunk - StepName: %s", stepExecution.StepName)
}

func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

var _ port.ChunkListener = (*LoggingChunkListener)(nil)
