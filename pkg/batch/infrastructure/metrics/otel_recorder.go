package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
)

// OTelMetricRecorder records through an OpenTelemetry meter.
type OTelMetricRecorder struct {
	jobDuration  otelmetric.Float64Histogram
	stepDuration otelmetric.Float64Histogram
	items        otelmetric.Int64Counter
	commits      otelmetric.Int64Counter
	operations   otelmetric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on meter.
func NewOTelMetricRecorder(meter otelmetric.Meter) (*OTelMetricRecorder, error) {
	jobDuration, err := meter.Float64Histogram("batch.job.duration",
		otelmetric.WithDescription("Duration of batch job executions."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("batch.step.duration",
		otelmetric.WithDescription("Duration of batch step executions."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	items, err := meter.Int64Counter("batch.step.items",
		otelmetric.WithDescription("Items handled by step and stage."), otelmetric.WithUnit("{item}"))
	if err != nil {
		return nil, err
	}
	commits, err := meter.Int64Counter("batch.step.commits",
		otelmetric.WithDescription("Committed chunk transactions."), otelmetric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}
	operations, err := meter.Float64Histogram("batch.operation.duration",
		otelmetric.WithDescription("Duration of named operations."), otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &OTelMetricRecorder{
		jobDuration:  jobDuration,
		stepDuration: stepDuration,
		items:        items,
		commits:      commits,
		operations:   operations,
	}, nil
}

func (r *OTelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("job.name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OTelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), otelmetric.WithAttributes(
		attribute.String("step.name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelMetricRecorder) addItems(ctx context.Context, stepName, stage string, count int) {
	r.items.Add(ctx, int64(count), otelmetric.WithAttributes(
		attribute.String("step.name", stepName),
		attribute.String("stage", stage),
	))
}

func (r *OTelMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.addItems(ctx, stepName, "read", count)
}

func (r *OTelMetricRecorder) RecordItemProcess(ctx context.Context, stepName string, count int) {
	r.addItems(ctx, stepName, "process", count)
}

func (r *OTelMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.addItems(ctx, stepName, "write", count)
}

func (r *OTelMetricRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.addItems(ctx, stepName, "filter", count)
}

func (r *OTelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.commits.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("step.name", stepName)))
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for _, k := range sortedKeys(tags) {
		attrs = append(attrs, attribute.String(k, tags[k]))
	}
	r.operations.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
