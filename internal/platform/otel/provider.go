package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// RuntimeKey names how the relay process is hosted ("server" or "lambda").
const RuntimeKey = attribute.Key("chat_relay.runtime")

// Deployment describes the running relay for span resources.
type Deployment struct {
	ServiceName string
	// Runtime is "server" or "lambda".
	Runtime string
	// FunctionName is the Lambda function name, if any.
	FunctionName string
	// Backend is the base URL of the conversational backend.
	Backend string
}

// Setup installs an OTLP/HTTP tracer provider when endpoint is non-empty.
// Without an endpoint the global no-op provider stays in place and the
// returned shutdown does nothing.
func Setup(ctx context.Context, d Deployment, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("otel: create exporter: %w", err)
	}

	res, err := newResource(ctx, d)
	if err != nil {
		return noop, fmt.Errorf("otel: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

func newResource(ctx context.Context, d Deployment) (*resource.Resource, error) {
	return resource.New(ctx, resource.WithAttributes(deploymentAttributes(d)...))
}

// deploymentAttributes omits empty fields.
func deploymentAttributes(d Deployment) []attribute.KeyValue {
	name := strings.TrimSpace(d.ServiceName)
	if name == "" {
		name = "chat-relay"
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if d.Runtime != "" {
		attrs = append(attrs, RuntimeKey.String(d.Runtime))
	}
	if d.FunctionName != "" {
		attrs = append(attrs, semconv.FaaSName(d.FunctionName))
	}
	if d.Backend != "" {
		attrs = append(attrs, semconv.ServerAddress(d.Backend))
	}
	return attrs
}
