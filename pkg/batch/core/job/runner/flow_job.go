package runner

import (
	"context"
	"errors"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/heimdalr/dag"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	exception "github.com/datasus/sihrd/pkg/batch/support/util/exception"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// FlowJob runs its steps in dependency order. Steps are vertices of a DAG; an edge
// from A to B means B consumes what A produces. When a step fails, every step that
// depends on it, directly or transitively, is abandoned without running. Steps on
// independent branches still run.
type FlowJob struct {
	id             string
	name           string
	graph          *dag.DAG
	steps          map[string]port.Step
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Verify that FlowJob implements the port.Job interface.
var _ port.Job = (*FlowJob)(nil)

// NewFlowJob creates an empty FlowJob.
func NewFlowJob(
	name string,
	jobListeners []port.JobExecutionListener,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *FlowJob {
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &FlowJob{
		id:             model.NewID(),
		name:           name,
		graph:          dag.NewDAG(),
		steps:          make(map[string]port.Step),
		jobListeners:   jobListeners,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// ID returns the job ID.
func (j *FlowJob) ID() string {
	return j.id
}

// JobName returns the job name.
func (j *FlowJob) JobName() string {
	return j.name
}

// AddStep registers step, to run after every step named in dependsOn.
// Dependencies must already be registered; an edge that would close a cycle is rejected.
func (j *FlowJob) AddStep(step port.Step, dependsOn ...string) error {
	name := step.StepName()
	if _, exists := j.steps[name]; exists {
		return exception.NewBatchErrorf(j.name, "step '%s' is already registered", name)
	}
	if err := j.graph.AddVertexByID(name, name); err != nil {
		return exception.NewBatchErrorf(j.name, "failed to add step '%s'", name, err)
	}
	j.steps[name] = step
	step.SetMetricRecorder(j.metricRecorder)
	step.SetTracer(j.tracer)

	for _, dep := range dependsOn {
		if _, ok := j.steps[dep]; !ok {
			return exception.NewBatchErrorf(j.name, "step '%s' depends on unknown step '%s'", name, dep)
		}
		if err := j.graph.AddEdge(dep, name); err != nil {
			return exception.NewBatchErrorf(j.name, "invalid dependency %s -> %s", dep, name, err)
		}
	}
	return nil
}

// Order returns the step names in a deterministic topological order:
// among the steps that are ready at any point, names are taken alphabetically.
func (j *FlowJob) Order() ([]string, error) {
	pending := make(map[string]int, len(j.steps))
	for name := range j.steps {
		parents, err := j.graph.GetParents(name)
		if err != nil {
			return nil, err
		}
		pending[name] = len(parents)
	}

	order := make([]string, 0, len(j.steps))
	for len(pending) > 0 {
		ready := make([]string, 0)
		for name, n := range pending {
			if n == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, exception.NewBatchErrorf(j.name, "dependency graph has no runnable step; it is not acyclic")
		}
		sort.Strings(ready)
		next := ready[0]
		delete(pending, next)
		order = append(order, next)

		children, err := j.graph.GetChildren(next)
		if err != nil {
			return nil, err
		}
		for child := range children {
			pending[child]--
		}
	}
	return order, nil
}

func (j *FlowJob) notifyBeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
}

func (j *FlowJob) notifyAfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}
}

// Run executes every step once, in Order. It returns the aggregated step errors.
func (j *FlowJob) Run(ctx context.Context, jobExecution *model.JobExecution) error {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()

	if jobExecution.Status == model.BatchStatusStarting {
		jobExecution.MarkAsStarted()
	}
	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	j.notifyBeforeJob(ctx, jobExecution)

	defer func() {
		j.notifyAfterJob(ctx, jobExecution)
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)
		logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
		for _, se := range jobExecution.StepExecutions {
			logger.Debugf("  StepExecution %s", se.String())
		}
	}()

	order, err := j.Order()
	if err != nil {
		jobExecution.MarkAsFailed(err)
		return err
	}

	var result *multierror.Error
	unavailable := make(map[string]bool)
	for _, name := range order {
		stepExecution := model.NewStepExecution(jobExecution, name)

		if err := ctx.Err(); err != nil {
			logger.Warnf("Context cancelled, interrupting execution of Job '%s': %v", j.name, err)
			stepExecution.MarkAsAbandoned()
			unavailable[name] = true
			continue
		}

		if blocker, blocked := j.blockedBy(name, unavailable); blocked {
			logger.Warnf("Job '%s': Step '%s' abandoned because upstream step '%s' did not complete.", j.name, name, blocker)
			stepExecution.MarkAsAbandoned()
			unavailable[name] = true
			continue
		}

		jobExecution.CurrentStepName = name
		stepCtx := port.GetContextWithStepExecution(ctx, stepExecution)
		if err := j.steps[name].Execute(stepCtx, jobExecution, stepExecution); err != nil {
			logger.Errorf("Job '%s': Error occurred during execution of step '%s': %v", j.name, name, err)
			j.tracer.RecordError(ctx, "job_runner", err)
			if !stepExecution.Status.IsFinished() {
				stepExecution.MarkAsFailed(err)
			}
			unavailable[name] = true
			result = multierror.Append(result, err)
			continue
		}
		logger.Infof("Job '%s': Step '%s' completed successfully. ExitStatus: %s", j.name, name, stepExecution.ExitStatus)
	}

	if err := ctx.Err(); err != nil {
		jobExecution.AddFailureException(err)
		jobExecution.MarkAsStopped()
		if result == nil {
			return err
		}
		return result.ErrorOrNil()
	}
	if err := result.ErrorOrNil(); err != nil {
		jobExecution.MarkAsFailed(err)
		return err
	}
	jobExecution.MarkAsCompleted()
	return nil
}

// blockedBy returns a direct parent of name that did not complete. Abandoned steps are
// themselves unavailable, so checking direct parents covers every ancestor.
func (j *FlowJob) blockedBy(name string, unavailable map[string]bool) (string, bool) {
	parents, err := j.graph.GetParents(name)
	if err != nil {
		return "", false
	}
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if unavailable[id] {
			return id, true
		}
	}
	return "", false
}

// IsCancellation reports whether err stems from context cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
