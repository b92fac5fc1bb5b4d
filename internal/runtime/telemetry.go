package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Boundaries in seconds for recorder.transcription.duration. CPU decoding of
// a long take can run for minutes.
var transcriptionBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// telemetry is what the runtime keeps from the installed providers.
type telemetry struct {
	shutdown func(context.Context) error
	metrics  http.Handler
	exporter string
}

func setupTelemetry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := recorderResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter, name, err := spanExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, v := range recorderViews() {
		metricOpts = append(metricOpts, sdkmetric.WithView(v))
	}
	var handler http.Handler
	if cfg.Telemetry.PrometheusEnabled {
		reader, err := prometheus.New()
		if err != nil {
			logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		} else {
			metricOpts = append(metricOpts, sdkmetric.WithReader(reader))
			handler = promhttp.Handler()
		}
	}
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(mp)

	logger.Info("telemetry initialized",
		slog.String("exporter", name),
		slog.Bool("prometheus", handler != nil),
		slog.String("capture_mode", cfg.Capture.Mode))

	return &telemetry{
		shutdown: func(ctx context.Context) error {
			return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
		},
		metrics:  handler,
		exporter: name,
	}, nil
}

// recorderResource tags every span and metric with the capture setup and the
// transcription endpoint in use.
func recorderResource(ctx context.Context, cfg config.Config) (*resource.Resource, error) {
	endpoint := strings.TrimRight(cfg.Transcription.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Transcription.Path, "/")
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("recorder.capture.mode", cfg.Capture.Mode),
			attribute.Int("recorder.capture.sample_rate", cfg.Capture.SampleRate),
			attribute.Int("recorder.capture.channels", cfg.Capture.Channels),
			attribute.String("recorder.transcription.endpoint", endpoint),
		),
	)
}

// spanExporter picks OTLP when an endpoint is configured, then stdout, and
// otherwise leaves spans unexported.
func spanExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, "", err
		}
		return exporter, "otlp", nil
	}
	if cfg.StdoutTraces {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, "", err
		}
		return exporter, "stdout", nil
	}
	return nil, "none", nil
}

func recorderViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "recorder.transcription.duration"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: transcriptionBuckets}},
		),
	}
}
