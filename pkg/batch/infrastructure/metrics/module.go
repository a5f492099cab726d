package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	metrics "github.com/tigerroll/employee-import/pkg/batch/core/metrics"
	logger "github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// NewMetricRecorder selects the recorder named by metrics.exporter. Providers it
// starts are shut down, and flushed, when the application stops.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	switch cfg.Metrics.Exporter {
	case "prometheus":
		logger.Infof("Metrics: Prometheus recorder enabled (pushgateway: %q).", cfg.Metrics.PushgatewayURL)
		return NewPrometheusRecorder(cfg.Metrics.PushgatewayURL), nil
	case "otlp":
		exporter, err := newMetricExporter(context.Background(), cfg.Metrics.OTLP)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		var readerOpts []sdkmetric.PeriodicReaderOption
		if cfg.Metrics.OTLP.Interval > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Metrics.OTLP.Interval))
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
			sdkmetric.WithResource(serviceResource(cfg.Tracing.ServiceName)),
		)
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
		logger.Infof("Metrics: OTLP recorder enabled (endpoint: %s, protocol: %s).", cfg.Metrics.OTLP.Endpoint, cfg.Metrics.OTLP.Protocol)
		recorder, err := NewOTelRecorder(provider)
		if err != nil {
			return nil, err
		}
		return recorder, nil
	default:
		return metrics.NewNoOpMetricRecorder(), nil
	}
}

// NewTracer selects the tracer named by tracing.exporter.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	if cfg.Tracing.Exporter != "otlp" {
		return metrics.NewNoOpTracer(), nil
	}
	exporter, err := newSpanExporter(context.Background(), cfg.Tracing.OTLP)
	if err != nil {
		return nil, fmt.Errorf("create OTLP span exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg.Tracing.ServiceName)),
	)
	lc.Append(fx.Hook{OnStop: provider.Shutdown})
	logger.Infof("Tracing: OTLP tracer enabled (endpoint: %s, protocol: %s).", cfg.Tracing.OTLP.Endpoint, cfg.Tracing.OTLP.Protocol)
	return NewOpenTelemetryTracer(provider), nil
}

func serviceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

func newMetricExporter(ctx context.Context, c config.OTLPConfig) (sdkmetric.Exporter, error) {
	if c.Protocol == "http" {
		opts := []otlpmetrichttp.Option{}
		if c.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(c.Endpoint))
		}
		if c.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{}
	if c.Endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func newSpanExporter(ctx context.Context, c config.OTLPConfig) (sdktrace.SpanExporter, error) {
	if c.Protocol == "http" {
		opts := []otlptracehttp.Option{}
		if c.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(c.Endpoint))
		}
		if c.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{}
	if c.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Module is an Fx module that provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
