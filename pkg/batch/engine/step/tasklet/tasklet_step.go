package tasklet

import (
	"context"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	exception "github.com/datasus/sihrd/pkg/batch/support/util/exception"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// TaskletStep runs a single port.Tasklet as a step.
type TaskletStep struct {
	id                     string
	tasklet                port.Tasklet
	stepExecutionListeners []port.StepExecutionListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewTaskletStep creates a new TaskletStep instance.
func NewTaskletStep(id string, tasklet port.Tasklet, stepExecutionListeners ...port.StepExecutionListener) *TaskletStep {
	return &TaskletStep{
		id:                     id,
		tasklet:                tasklet,
		stepExecutionListeners: stepExecutionListeners,
		metricRecorder:         metrics.NewNoOpMetricRecorder(),
		tracer:                 metrics.NewNoOpTracer(),
	}
}

// SetMetricRecorder implements port.Step.
func (s *TaskletStep) SetMetricRecorder(recorder metrics.MetricRecorder) {
	if recorder != nil {
		s.metricRecorder = recorder
	}
}

// SetTracer implements port.Step.
func (s *TaskletStep) SetTracer(tracer metrics.Tracer) {
	if tracer != nil {
		s.tracer = tracer
	}
}

// ID returns the step ID.
func (s *TaskletStep) ID() string {
	return s.id
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.id
}

// Execute runs the Tasklet and closes it, whatever the outcome.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (err error) {
	ctx, finishSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer finishSpan()

	logger.Infof("TaskletStep '%s' executing.", s.id)
	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.tasklet.Execute(ctx, stepExecution)
	if closeErr := s.tasklet.Close(ctx); closeErr != nil {
		logger.Errorf("TaskletStep '%s': Failed to close Tasklet: %v", s.id, closeErr)
		if err == nil {
			err = closeErr
		}
	}

	if err != nil {
		err = exception.NewBatchError(s.id, "tasklet failed", err)
		s.tracer.RecordError(ctx, s.id, err)
		stepExecution.MarkAsFailed(err)
	} else {
		stepExecution.MarkAsCompleted()
		if exitStatus != "" {
			stepExecution.ExitStatus = exitStatus
		}
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)
	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.id, stepExecution.ExitStatus)
	return err
}

// Verify that TaskletStep implements the port.Step interface.
var _ port.Step = (*TaskletStep)(nil)
