// Package telemetry wires OpenTelemetry tracing for turn and action spans.
// Export goes over OTLP HTTP, configured by the standard OTEL env vars.
package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/slashbot/slashbot"

// Shutdown flushes pending spans. Call on process exit.
type Shutdown func(context.Context) error

func nopShutdown(context.Context) error { return nil }

// Init sets up the global tracer provider. Without an OTLP endpoint
// configured, tracing is a no-op so the runtime never waits on a
// collector that is not there.
func Init(ctx context.Context) (trace.Tracer, Shutdown, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" &&
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return noop.NewTracerProvider().Tracer(scopeName), nopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("slashbot")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", "exporter", "otlp-http")

	return tp.Tracer(scopeName), tp.Shutdown, nil
}

// StartTurn opens a span for one agent turn.
func StartTurn(ctx context.Context, tracer trace.Tracer, agentID, connector string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("connector", connector),
		))
}

// StartAction opens a child span for one executed action.
func StartAction(ctx context.Context, tracer trace.Tracer, tag string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.action",
		trace.WithAttributes(attribute.String("action.tag", tag)))
}
