// Package telemetry configures OpenTelemetry tracing for the pipeline.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"usage-cost/internal/errors"
)

// Exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects the span exporter.
type Config struct {
	Exporter    string `hcl:"exporter,optional" json:"exporter"`
	Endpoint    string `hcl:"endpoint,optional" json:"endpoint,omitempty"`
	ServiceName string `hcl:"service_name,optional" json:"service_name"`
	Insecure    bool   `hcl:"insecure,optional" json:"insecure"`
}

// DefaultConfig disables tracing.
func DefaultConfig() *Config {
	return &Config{
		Exporter:    ExporterNone,
		ServiceName: "usage-cost",
		Insecure:    true,
	}
}

// Validate checks the exporter settings.
func (c *Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone, ExporterStdout:
		return nil
	case ExporterOTLP:
		if c.Endpoint == "" {
			return errors.Config("otlp exporter needs an endpoint")
		}
		return nil
	default:
		return errors.Config(fmt.Sprintf("unknown trace exporter %q", c.Exporter))
	}
}

// InitTracer installs a global tracer provider and returns its shutdown
// function. With the none exporter the global no-op provider is left alone.
func InitTracer(cfg *Config, version string) (func(), error) {
	return initTracer(cfg, version, os.Stderr)
}

func initTracer(cfg *Config, version string, stdout io.Writer) (func(), error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Exporter == "" || cfg.Exporter == ExporterNone {
		return func() {}, nil
	}

	ctx := context.Background()

	var exporter trace.SpanExporter
	var err error

	if cfg.Exporter == ExporterOTLP {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "failed to create OTLP trace exporter", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, errors.Wrap(errors.TypeConfig, "failed to create stdout trace exporter", err)
		}
	}

	name := cfg.ServiceName
	if name == "" {
		name = "usage-cost"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to create trace resource", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shutdown tracer provider: %v\n", err)
		}
	}
	return shutdown, nil
}
