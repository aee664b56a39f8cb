package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/datasus/sihrd/pkg/batch/core/config"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
)

func finishedStep(status model.JobStatus) *model.StepExecution {
	je := model.NewJobExecution("sihRdPipeline", model.NewJobParameters())
	se := model.NewStepExecution(je, "trusted")
	se.MarkAsStarted()
	if status == model.BatchStatusFailed {
		se.MarkAsFailed(errors.New("strict conversion"))
	} else {
		se.MarkAsCompleted()
	}
	return se
}

func TestPrometheusRecorder_CountsAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sihrd.prom")
	r := NewPrometheusRecorder("sihRdPipeline", config.PrometheusConfig{TextfilePath: path})
	ctx := context.Background()

	r.RecordItemRead(ctx, "trusted", 500)
	r.RecordItemRead(ctx, "trusted", 20)
	r.RecordItemWrite(ctx, "trusted", 520)
	r.RecordChunkCommit(ctx, "trusted", 500)
	r.RecordChunkCommit(ctx, "trusted", 20)
	r.RecordStepEnd(ctx, finishedStep(model.BatchStatusCompleted))
	r.RecordDuration(ctx, "publish", 150*time.Millisecond, map[string]string{"step": "trusted", "table": "tb_sih_rd_trusted"})

	assert.Equal(t, 520.0, testutil.ToFloat64(r.itemsCounter.WithLabelValues("trusted", "read")))
	assert.Equal(t, 520.0, testutil.ToFloat64(r.itemsCounter.WithLabelValues("trusted", "write")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.chunkCommitCounter.WithLabelValues("trusted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("trusted", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.operationSeconds))

	require.NoError(t, r.Flush(ctx))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `batch_step_items_total{job_name="sihRdPipeline",stage="read",step_name="trusted"} 520`)
}

func TestPrometheusRecorder_FlushWithoutTargetsIsNoOp(t *testing.T) {
	r := NewPrometheusRecorder("job", config.PrometheusConfig{})
	assert.NoError(t, r.Flush(context.Background()))
}

func TestOpenTelemetryTracer_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewOpenTelemetryTracer(provider.Tracer("test"))

	je := model.NewJobExecution("sihRdPipeline", model.NewJobParameters())
	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	se := model.NewStepExecution(je, "refined")
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	se.MarkAsStarted()
	err := errors.New("duplicate lookup key")
	tracer.RecordError(stepCtx, "refined", err)
	tracer.RecordEvent(stepCtx, "lookups.loaded", map[string]interface{}{"municipalities": 5570, "source": "sql"})
	se.MarkAsFailed(err)
	endStep()
	je.MarkAsStarted()
	je.MarkAsFailed(err)
	endJob()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	step, job := spans[0], spans[1]
	assert.Equal(t, "step refined", step.Name())
	assert.Equal(t, "job sihRdPipeline", job.Name())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, codes.Error, job.Status().Code)

	var names []string
	for _, e := range step.Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"exception", "lookups.loaded"}, names)
}

func TestOTelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOTelMetricRecorder(provider.Meter("test"))
	require.NoError(t, err)
	ctx := context.Background()

	r.RecordItemRead(ctx, "trusted", 3)
	r.RecordItemRead(ctx, "trusted", 4)
	r.RecordChunkCommit(ctx, "trusted", 7)
	r.RecordStepEnd(ctx, finishedStep(model.BatchStatusCompleted))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	found := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		found[m.Name] = true
		if m.Name == "batch.step.items" {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(7), sum.DataPoints[0].Value)
		}
	}
	assert.True(t, found["batch.step.items"])
	assert.True(t, found["batch.step.commits"])
	assert.True(t, found["batch.step.duration"])
}
