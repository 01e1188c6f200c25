// Package telemetry installs the process-wide OpenTelemetry trace pipeline
// for the CLI and the key server.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/earnout-labs/dealvault/pkg/build"
	"github.com/earnout-labs/dealvault/pkg/config"
)

const (
	// DefaultTracesEndpoint is a local OTLP/HTTP collector.
	DefaultTracesEndpoint = "localhost:4318"
	defaultServiceName    = "dealvault"
)

type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

type Option func(*settings)

type settings struct {
	service string
	network string
}

// WithServiceName overrides the service.name resource attribute, e.g. for
// the key server.
func WithServiceName(name string) Option {
	return func(s *settings) {
		s.service = name
	}
}

// WithNetwork records the preset network the process talks to.
func WithNetwork(name string) Option {
	return func(s *settings) {
		s.network = name
	}
}

// Setup installs the propagator and, when cfg.Enabled, an OTLP/HTTP exporter
// sampling cfg.SampleRatio of root traces. The returned Shutdown flushes
// pending spans and must be called before exit.
func Setup(ctx context.Context, cfg config.TelemetryConfig, opts ...Option) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	s := settings{service: defaultServiceName}
	for _, opt := range opts {
		opt(&s)
	}

	sampler, err := newSampler(cfg.SampleRatio)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracehttp.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(s)...))
	if err != nil {
		return nil, fmt.Errorf("describing trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

// newSampler keeps every trace for a zero ratio, so enabling tracing without
// further settings records everything.
func newSampler(ratio float64) (sdktrace.Sampler, error) {
	switch {
	case ratio < 0 || ratio > 1:
		return nil, fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %v", ratio)
	case ratio == 0 || ratio == 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
}

func resourceAttributes(s settings) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", s.service),
		attribute.String("service.version", build.Version),
	}
	if s.network != "" {
		attrs = append(attrs, attribute.String("deployment.environment", s.network))
	}
	return attrs
}

func exporterOptions(cfg config.TelemetryConfig) []otlptracehttp.Option {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultTracesEndpoint
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return opts
}
