// Package metrics defines the observability ports of the batch engine.
// Backends live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

// MetricRecorder records job, step, item and chunk level metrics.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordItemRead records count items read by stepName.
	RecordItemRead(ctx context.Context, stepName string, count int)
	// RecordItemProcess records count items processed by stepName.
	RecordItemProcess(ctx context.Context, stepName string, count int)
	// RecordItemWrite records count items written by stepName.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemFilter records count items dropped by the processor of stepName.
	RecordItemFilter(ctx context.Context, stepName string, count int)
	// RecordChunkCommit records one committed chunk of count items.
	RecordChunkCommit(ctx context.Context, stepName string, count int)

	// RecordDuration records the duration of an arbitrary named operation.
	//   RecordDuration(ctx, "publish", d, map[string]string{"table": "tb_sih_rd_trusted"})
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
