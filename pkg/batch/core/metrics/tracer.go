package metrics

import (
	"context"

	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

// Tracer starts spans for job and step executions.
type Tracer interface {
	// StartJobSpan returns a context carrying the new span and a function ending it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan returns a context carrying the new span and a function ending it.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError records err on the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
