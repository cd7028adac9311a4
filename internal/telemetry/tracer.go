// Package telemetry wires OpenTelemetry tracing. Tracing is off unless an
// OTLP endpoint is configured in the environment.
package telemetry

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/joelkehle/visual-abstract"

type otelErrorHandler struct {
	logger *logrus.Logger
}

func (h *otelErrorHandler) Handle(err error) {
	if err != nil {
		h.logger.WithError(err).Debug("otel: sdk error")
	}
}

// InitTracer installs a global tracer provider and returns its shutdown
// func. When tracing is disabled or the exporter cannot be built, a noop
// provider is installed and the returned func does nothing.
func InitTracer(logger *logrus.Logger, serviceName string) func(context.Context) error {
	noopShutdown := func(context.Context) error { return nil }

	if strings.EqualFold(os.Getenv("OTEL_SDK_DISABLED"), "true") {
		logger.Debug("otel: disabled via OTEL_SDK_DISABLED")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown
	}
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		logger.Debug("otel: OTEL_EXPORTER_OTLP_ENDPOINT not set, using noop tracer")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown
	}

	otel.SetErrorHandler(&otelErrorHandler{logger: logger})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		logger.WithError(err).Warn("otel: failed to create exporter, falling back to noop tracer")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		logger.WithError(err).Debug("otel: using default resource")
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.WithField("endpoint", endpoint).Info("otel: tracing enabled")

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}

// Tracer returns the package tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name with string attributes from kv pairs.
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
