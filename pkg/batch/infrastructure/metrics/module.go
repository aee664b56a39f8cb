package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/datasus/sihrd/pkg/batch/core/config"
	metrics "github.com/datasus/sihrd/pkg/batch/core/metrics"
	logger "github.com/datasus/sihrd/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/datasus/sihrd/pkg/batch"

func newResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

func newTraceExporter(ctx context.Context, cfg config.OTLPConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
	}
}

func newMetricExporter(ctx context.Context, cfg config.OTLPConfig) (sdkmetric.Exporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
	}
}

// NewMetricRecorder builds the recorder selected by surfin.metrics.backend and registers
// its flush or shutdown on lc.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	m := cfg.Surfin.Metrics
	switch strings.ToLower(m.Backend) {
	case "prometheus":
		recorder := NewPrometheusRecorder(cfg.Surfin.Batch.JobName, m.Prometheus)
		lc.Append(fx.Hook{OnStop: recorder.Flush})
		return recorder, nil
	case "otlp":
		exporter, err := newMetricExporter(context.Background(), m.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(newResource(cfg.Surfin.Tracing.ServiceName)),
		)
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
		return NewOTelMetricRecorder(provider.Meter(instrumentationName))
	case "", "none":
		return metrics.NewNoOpMetricRecorder(), nil
	default:
		return nil, fmt.Errorf("unsupported metrics backend: %s", m.Backend)
	}
}

// NewTracer builds an OTLP-exporting tracer when surfin.tracing.enabled is set and a
// no-op tracer otherwise.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	t := cfg.Surfin.Tracing
	if !t.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	exporter, err := newTraceExporter(context.Background(), t.OTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(t.ServiceName)),
	)
	lc.Append(fx.Hook{OnStop: provider.Shutdown})
	logger.Infof("Tracing enabled: exporting spans to %s over %s.", t.OTLP.Endpoint, t.OTLP.Protocol)
	return NewOpenTelemetryTracer(provider.Tracer(instrumentationName)), nil
}

// Module provides the MetricRecorder and Tracer selected by configuration.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder, NewTracer),
)
