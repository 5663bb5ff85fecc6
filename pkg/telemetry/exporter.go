/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package telemetry pushes the exported Miniserver state to an OTLP
// collector. Instruments are observable gauges read from the same snapshots
// and filter as the Prometheus collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"google.golang.org/grpc/credentials"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/metrics"
	"github.com/carverauto/loxone-exporter/pkg/version"
)

const (
	scopeName = "github.com/carverauto/loxone-exporter"

	defaultInterval        = 30 * time.Second
	defaultTimeout         = 15 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	retryInitialInterval = time.Second
	retryMaxInterval     = 5 * time.Minute
)

var (
	ErrTelemetryDisabled = errors.New("OTLP metrics export is disabled")
	ErrEndpointRequired  = errors.New("OTLP endpoint is required when enabled")
)

// Config is the opentelemetry section of the exporter config.
type Config struct {
	Enabled  bool              `json:"enabled" yaml:"enabled"`
	Endpoint string            `json:"endpoint" yaml:"endpoint"`
	Insecure bool              `json:"insecure" yaml:"insecure"`
	Interval logger.Duration   `json:"interval" yaml:"interval"`
	Timeout  logger.Duration   `json:"timeout" yaml:"timeout"`
	Headers  map[string]string `json:"headers" yaml:"headers"`
	TLS      *logger.TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// ExportInterval returns the push period, defaulting to 30s.
func (c Config) ExportInterval() time.Duration {
	if c.Interval <= 0 {
		return defaultInterval
	}

	return time.Duration(c.Interval)
}

// ExportTimeout returns the per-export deadline, defaulting to 15s.
func (c Config) ExportTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}

	return time.Duration(c.Timeout)
}

// Exporter owns the meter provider that pushes to the collector.
type Exporter struct {
	provider *sdkmetric.MeterProvider
	status   *statusTracker
	logger   logger.Logger
}

var _ metrics.ExportStatusProvider = (*Exporter)(nil)

// New builds the OTLP gRPC pipeline. It returns ErrTelemetryDisabled when the
// config does not enable export.
func New(ctx context.Context, cfg Config, sources []metrics.SnapshotSource, filter metrics.Filter,
	log logger.Logger) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, ErrTelemetryDisabled
	}

	if cfg.Endpoint == "" {
		return nil, ErrEndpointRequired
	}

	opts, err := exporterOptions(cfg)
	if err != nil {
		return nil, err
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("loxone-exporter"),
			semconv.ServiceVersion(version.GetVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	status := newStatusTracker(time.Now)

	reader := sdkmetric.NewPeriodicReader(
		&trackingExporter{Exporter: exp, status: status, logger: log},
		sdkmetric.WithInterval(cfg.ExportInterval()),
		sdkmetric.WithTimeout(cfg.ExportTimeout()),
	)

	e, err := newExporter(reader, res, status, sources, filter, log)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Dur("interval", cfg.ExportInterval()).
		Msg("OTLP metrics export enabled")

	return e, nil
}

func newExporter(reader sdkmetric.Reader, res *resource.Resource, status *statusTracker,
	sources []metrics.SnapshotSource, filter metrics.Filter, log logger.Logger) (*Exporter, error) {
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}

	provider := sdkmetric.NewMeterProvider(opts...)

	meter := provider.Meter(scopeName, metric.WithInstrumentationVersion(version.GetVersion()))

	if err := registerInstruments(meter, sources, filter); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return &Exporter{provider: provider, status: status, logger: log}, nil
}

func exporterOptions(cfg Config) ([]otlpmetricgrpc.Option, error) {
	var opts []otlpmetricgrpc.Option

	if u, err := url.Parse(cfg.Endpoint); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		opts = append(opts, otlpmetricgrpc.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
	}

	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else if cfg.TLS != nil {
		tlsConfig, err := logger.NewTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup metrics TLS configuration: %w", err)
		}

		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}

	opts = append(opts,
		otlpmetricgrpc.WithTimeout(cfg.ExportTimeout()),
		otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: retryInitialInterval,
			MaxInterval:     retryMaxInterval,
			MaxElapsedTime:  cfg.ExportInterval(),
		}),
	)

	return opts, nil
}

// ExportStatus reports the outcome of recent pushes.
func (e *Exporter) ExportStatus() metrics.ExportStatus {
	return e.status.snapshot()
}

// Run blocks until ctx is cancelled and then flushes and stops the pipeline.
// A failed final flush is logged; it does not fail the shutdown.
func (e *Exporter) Run(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn().Err(err).Msg("Final OTLP metrics flush failed")
	}

	return nil
}

// Shutdown flushes pending data and stops the periodic reader.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if err := e.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}

	return nil
}
