package runner

import (
	"context"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// SimpleJobRunner creates a JobExecution for a job and runs it in the caller's goroutine.
type SimpleJobRunner struct{}

// NewSimpleJobRunner creates a SimpleJobRunner.
func NewSimpleJobRunner() *SimpleJobRunner {
	return &SimpleJobRunner{}
}

// Run executes job with params. The returned JobExecution is always non-nil and
// finished; the error is the job's own failure, if any.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, params model.JobParameters) (*model.JobExecution, error) {
	jobExecution := model.NewJobExecution(job.JobName(), params)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobExecution.CancelFunc = cancel

	err := job.Run(runCtx, jobExecution)
	if err != nil {
		if !jobExecution.Status.IsFinished() {
			jobExecution.MarkAsFailed(err)
		}
	} else if !jobExecution.Status.IsFinished() {
		logger.Warnf("JobRunner: Job '%s' returned without a final status; marking as COMPLETED.", job.JobName())
		jobExecution.MarkAsCompleted()
	}

	logger.Infof("JobRunner: Job '%s' (ID: %s) ended with %s in %s.",
		job.JobName(), jobExecution.ID, jobExecution.Status, jobExecution.Duration())
	return jobExecution, err
}
