// Package port defines the contracts between the batch engine and its components:
// readers, processors, writers, tasklets, steps, jobs and listeners.
package port

import (
	"context"
	"errors"

	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	tx "github.com/datasus/sihrd/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read when the source is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// ErrItemFiltered is returned by ItemProcessor.Process to drop an item without failing the chunk.
var ErrItemFiltered = errors.New("item filtered")

// ItemReader reads items one at a time from a source.
type ItemReader[O any] interface {
	// Open prepares the reader (opens cursors, files, iterators).
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems once the source is exhausted.
	Read(ctx context.Context) (O, error)
	// Close releases the resources acquired by Open. It must be safe to call more than once.
	Close(ctx context.Context) error
}

// ItemProcessor converts one input item into one output item.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter writes a chunk of items inside the chunk transaction.
type ItemWriter[I any] interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists items. tx is the chunk transaction; writers that do not target
	// a transactional store receive a no-op Tx.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	Close(ctx context.Context) error
	// GetTargetDBName returns the name of the connection the writer targets.
	GetTargetDBName() string
	// GetTableName returns the name of the table or object prefix the writer targets.
	GetTableName() string
}

// ItemStream is implemented by processors that need to acquire state before the first item.
type ItemStream interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Close(ctx context.Context) error
}

// Completer is implemented by writers that publish their output only after every chunk
// of the step has been committed. Complete is called once, after the reader is closed.
// If Complete fails the step fails and the previously published output is left untouched.
type Completer interface {
	Complete(ctx context.Context) error
}

// Tasklet is a single unit of work that is not item oriented.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
	Close(ctx context.Context) error
}

// Step is one node of a job.
type Step interface {
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	StepName() string
	ID() string

	SetMetricRecorder(recorder metrics.MetricRecorder)
	SetTracer(tracer metrics.Tracer)
}

// Job runs a set of steps for one JobExecution.
type Job interface {
	Run(ctx context.Context, jobExecution *model.JobExecution) error
	JobName() string
	ID() string
}

// StepExecutionListener is notified around every step execution.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is notified around every chunk transaction.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
}

// JobExecutionListener is notified around the job execution.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution returns a context carrying se.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext returns the StepExecution stored in ctx, or nil.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
