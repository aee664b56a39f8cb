// Package metrics provides the Prometheus and OpenTelemetry backends of the batch
// engine's MetricRecorder and Tracer ports.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	config "github.com/datasus/sihrd/pkg/batch/core/config"
	model "github.com/datasus/sihrd/pkg/batch/core/domain/model"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

// PrometheusRecorder records into its own registry. A batch process is short-lived, so
// the registry leaves the process through Flush rather than a scrape endpoint.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	jobName  string
	cfg      config.PrometheusConfig

	jobDurationSeconds  *prometheus.HistogramVec
	jobStatusCounter    *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	itemsCounter        *prometheus.CounterVec
	chunkCommitCounter  *prometheus.CounterVec
	operationSeconds    *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder. Every series carries the job name
// as a constant label.
func NewPrometheusRecorder(jobName string, cfg config.PrometheusConfig) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	constLabels := prometheus.Labels{"job_name": jobName}
	r := &PrometheusRecorder{
		registry: registry,
		jobName:  jobName,
		cfg:      cfg,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "batch_job_duration_seconds",
			Help:        "Duration of batch job executions.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "batch_job_status_total",
			Help:        "Batch job executions by final status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "batch_step_duration_seconds",
			Help:        "Duration of batch step executions.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"step_name", "status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "batch_step_status_total",
			Help:        "Batch step executions by final status.",
			ConstLabels: constLabels,
		}, []string{"step_name", "status"}),
		itemsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "batch_step_items_total",
			Help:        "Items handled by step and stage (read, process, write, filter).",
			ConstLabels: constLabels,
		}, []string{"step_name", "stage"}),
		chunkCommitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "batch_step_commit_total",
			Help:        "Committed chunk transactions by step.",
			ConstLabels: constLabels,
		}, []string{"step_name"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "batch_operation_duration_seconds",
			Help:        "Duration of named operations such as table publication.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"operation", "step_name", "table"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.itemsCounter,
		r.chunkCommitCounter,
		r.operationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	status := execution.Status.String()
	r.jobStatusCounter.WithLabelValues(status).Inc()
	if execution.EndTime != nil {
		r.jobDurationSeconds.WithLabelValues(status).Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
	}
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName)
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	status := execution.Status.String()
	r.stepStatusCounter.WithLabelValues(execution.StepName, status).Inc()
	if execution.EndTime != nil {
		r.stepDurationSeconds.WithLabelValues(execution.StepName, status).Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
	}
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.itemsCounter.WithLabelValues(stepName, "read").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string, count int) {
	r.itemsCounter.WithLabelValues(stepName, "process").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemsCounter.WithLabelValues(stepName, "write").Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.itemsCounter.WithLabelValues(stepName, "filter").Add(float64(count))
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommitCounter.WithLabelValues(stepName).Inc()
}

// RecordDuration observes duration under the operation name. The "step" and "table" tags
// become labels; other tags are ignored.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name, tags["step"], tags["table"]).Observe(duration.Seconds())
}

// Flush writes the registry to the configured textfile and pushes it to the configured
// Pushgateway. Both are optional.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	var result error
	if r.cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(r.cfg.TextfilePath, r.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("write textfile %s: %w", r.cfg.TextfilePath, err))
		} else {
			logger.Infof("Metrics written to %s.", r.cfg.TextfilePath)
		}
	}
	if r.cfg.PushgatewayURL != "" {
		pusher := push.New(r.cfg.PushgatewayURL, r.jobName).Gatherer(r.registry)
		if err := pusher.PushContext(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("push to %s: %w", r.cfg.PushgatewayURL, err))
		} else {
			logger.Infof("Metrics pushed to %s.", r.cfg.PushgatewayURL)
		}
	}
	return result
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
