package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newSpanExporter creates a span exporter, or nil for ExporterNone.
func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("%w: otlp trace endpoint not configured", ErrExporter)
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)

	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout), stdouttrace.WithPrettyPrint())

	case ExporterNone, "":
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown trace exporter %q", ErrExporter, cfg.Exporter)
	}
}

// newMetricReader creates a metric reader, or nil for ExporterNone. The
// returned handler is non-nil only for the prometheus exporter.
func newMetricReader(ctx context.Context, cfg MetricsConfig) (sdkmetric.Reader, http.Handler, error) {
	periodic := func(exp sdkmetric.Exporter) sdkmetric.Reader {
		var opts []sdkmetric.PeriodicReaderOption
		if cfg.ExportInterval > 0 {
			opts = append(opts, sdkmetric.WithInterval(cfg.ExportInterval))
		}
		return sdkmetric.NewPeriodicReader(exp, opts...)
	}

	switch cfg.Exporter {
	case ExporterOTLP:
		if cfg.Endpoint == "" {
			return nil, nil, fmt.Errorf("%w: otlp metrics endpoint not configured", ErrExporter)
		}
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: otlp metrics: %v", ErrExporter, err)
		}
		return periodic(exp), nil, nil

	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: stdout metrics: %v", ErrExporter, err)
		}
		return periodic(exp), nil, nil

	case ExporterPrometheus:
		registry := promclient.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: prometheus: %v", ErrExporter, err)
		}
		return exp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil

	case ExporterNone, "":
		return nil, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown metrics exporter %q", ErrExporter, cfg.Exporter)
	}
}
