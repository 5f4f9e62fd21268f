package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/i2y/sqlgenmcp/configs"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

// telemetry exports dispatch spans and metrics to an OTLP collector over a
// single gRPC connection. A nil *telemetry means export is disabled.
type telemetry struct {
	conn           *grpc.ClientConn
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// newTelemetry returns nil when no collector endpoint is configured.
func newTelemetry(ctx context.Context, cfg *configs.Config, logger *slog.Logger) (*telemetry, error) {
	if cfg.OtelExporterOtlpEndpoint == "" {
		logger.Info("SQLGENMCP_OTEL_EXPORTER_OTLP_ENDPOINT not set, OpenTelemetry export disabled.")
		return nil, nil
	}
	logger.Info("Initializing OTLP exporters.",
		slog.String("endpoint", cfg.OtelExporterOtlpEndpoint),
		slog.Bool("insecure", cfg.OtelExporterOtlpInsecure))

	conn, err := grpc.NewClient(cfg.OtelExporterOtlpEndpoint, grpc.WithTransportCredentials(otlpCredentials(cfg)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServerName),
			semconv.ServiceVersion(cfg.ServerVersion),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	return &telemetry{
		conn: conn,
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		),
	}, nil
}

// otlpCredentials returns plaintext credentials when insecure export is
// configured and TLS with the system roots otherwise.
func otlpCredentials(cfg *configs.Config) credentials.TransportCredentials {
	if cfg.OtelExporterOtlpInsecure {
		return insecure.NewCredentials()
	}
	return credentials.NewClientTLSFromCert(nil, "")
}

// install makes the providers global and sets W3C trace context propagation.
func (t *telemetry) install() {
	if t == nil {
		return
	}
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

func (t *telemetry) dispatcherOptions() []usecase.DispatcherOption {
	if t == nil {
		return nil
	}
	return []usecase.DispatcherOption{
		usecase.WithTracerProvider(t.tracerProvider),
		usecase.WithMeterProvider(t.meterProvider),
	}
}

// Shutdown flushes both providers and closes the connection.
func (t *telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
		t.conn.Close(),
	)
}
