package telemetry

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// Init configures the global tracer provider for batch entrypoints.
// Tracing is off unless SCIFLOW_TRACING_ENABLED is set; spans then go
// to stdout. Returns a shutdown func that flushes pending spans.
func Init(ctx context.Context, log *logger.Logger, serviceName string) (func(context.Context) error, error) {
	if !enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("service.component", "persistence"),
		),
	)
	if err != nil && log != nil {
		log.Warn("telemetry resource init failed, continuing", "error", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	if log != nil {
		log.Info("tracing initialized", "service", serviceName)
	}
	return tp.Shutdown, nil
}

// Tracer returns the named tracer when tracing is on, otherwise a noop
// tracer so call sites never nil-check.
func Tracer(name string) trace.Tracer {
	if !enabled() {
		return noop.NewTracerProvider().Tracer(name)
	}
	return otel.Tracer(name)
}

func enabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("SCIFLOW_TRACING_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
