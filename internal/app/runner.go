package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/fx"

	"github.com/datasus/sihrd/pkg/batch/core/domain/model"
	"github.com/datasus/sihrd/pkg/batch/core/job/runner"
	"github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// Result records how the job run by the application ended.
type Result struct {
	mu        sync.Mutex
	execution *model.JobExecution
	err       error
	done      bool
	finished  chan struct{}
}

// NewResult creates an empty Result.
func NewResult() *Result {
	return &Result{finished: make(chan struct{})}
}

func (r *Result) set(execution *model.JobExecution, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execution = execution
	r.err = err
	if !r.done {
		r.done = true
		close(r.finished)
	}
}

// Done is closed once the job has ended.
func (r *Result) Done() <-chan struct{} {
	return r.finished
}

// Execution returns the finished job execution, or nil while the job has not run.
func (r *Result) Execution() *model.JobExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execution
}

// Err returns the job error.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ExitCode is 0 when the job ran and completed, 1 otherwise.
func (r *Result) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done || r.err != nil || r.execution == nil || r.execution.Status != model.BatchStatusCompleted {
		return 1
	}
	return 0
}

// startJob runs the job once the application has started and shuts the application down
// when it ends.
func startJob(lc fx.Lifecycle, shutdowner fx.Shutdowner, flow *runner.FlowJob, result *Result, appCtx context.Context) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in job execution: %v", r)
						result.set(nil, fmt.Errorf("job panicked: %v", r))
					}
					logger.Infof("Requesting application shutdown after job completion.")
					if err := shutdowner.Shutdown(fx.ExitCode(result.ExitCode())); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				logger.Infof("Starting job '%s'...", flow.JobName())
				execution, err := runner.NewSimpleJobRunner().Run(appCtx, flow, model.NewJobParameters())
				result.set(execution, err)
				logSummary(execution)
				if err != nil {
					logger.Errorf("Job '%s' failed: %v", flow.JobName(), err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func logSummary(execution *model.JobExecution) {
	if execution == nil {
		return
	}
	for _, se := range execution.StepExecutions {
		logger.WithFields(map[string]interface{}{
			"step":    se.StepName,
			"status":  se.Status.String(),
			"read":    se.ReadCount,
			"written": se.WriteCount,
			"commits": se.CommitCount,
		}).Info("Step summary")
	}
}
