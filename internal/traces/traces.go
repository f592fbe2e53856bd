// Package traces provides OpenTelemetry distributed tracing for the escrow client.
package traces

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/samuelarogbonlo/dot-escrow"

// Config selects the exporter and sampling.
type Config struct {
	Endpoint    string  // OTLP gRPC collector; empty disables tracing
	Version     string  // reported as service.version
	SampleRatio float64 // fraction of root spans kept; <= 0 or >= 1 keeps all
}

// Init installs the global tracer provider and returns its shutdown func.
// With no endpoint it installs nothing and shutdown is a no-op.
func Init(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("dot-escrow"),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_ratio", cfg.SampleRatio)
	return tp.Shutdown, nil
}

// Sampler keeps ratio of new traces and follows the parent decision for
// spans that arrive with one.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// StartSpan starts a new span with the given name and returns the updated context and span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Fail marks span as failed with msg.
func Fail(span trace.Span, msg string) {
	span.SetStatus(codes.Error, msg)
}

// Common attribute helpers for consistent span decoration.

func Message(label string) attribute.KeyValue {
	return attribute.String("contract.message", label)
}

func Caller(addr string) attribute.KeyValue {
	return attribute.String("caller.addr", addr)
}

func EscrowID(id string) attribute.KeyValue {
	return attribute.String("escrow.id", id)
}

func ProposalID(id uint64) attribute.KeyValue {
	return attribute.Int64("proposal.id", int64(id))
}

func TxHash(hash string) attribute.KeyValue {
	return attribute.String("tx.hash", hash)
}

func State(state string) attribute.KeyValue {
	return attribute.String("tx.state", state)
}
