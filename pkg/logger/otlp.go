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

package logger

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"google.golang.org/grpc/credentials"

	"github.com/carverauto/loxone-exporter/pkg/version"
)

var (
	ErrOTelLoggingDisabled  = errors.New("OTel logging is disabled")
	ErrOTelEndpointRequired = errors.New("OTel endpoint is required when enabled")
	errFailedToParseCACert  = errors.New("failed to parse CA certificate")
)

// OTelConfig configures the OTLP gRPC log exporter.
type OTelConfig struct {
	Enabled      bool              `json:"enabled" yaml:"enabled"`
	Endpoint     string            `json:"endpoint" yaml:"endpoint"`
	Headers      map[string]string `json:"headers" yaml:"headers"`
	ServiceName  string            `json:"service_name" yaml:"service_name"`
	BatchTimeout Duration          `json:"batch_timeout" yaml:"batch_timeout"`
	Insecure     bool              `json:"insecure" yaml:"insecure"`
	TLS          *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig points at PEM files for OTLP client TLS. Shared by the log and
// metric exporters.
type TLSConfig struct {
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

//nolint:gochecknoglobals // one log pipeline per process, flushed by ShutdownOTEL
var (
	providerMu sync.Mutex
	provider   *sdklog.LoggerProvider
)

// NewOTELWriter starts the OTLP log pipeline and returns a writer feeding it.
// The provider is also installed as the global OTel logger provider.
func NewOTELWriter(ctx context.Context, config OTelConfig) (*OTelWriter, error) {
	if !config.Enabled {
		return nil, ErrOTelLoggingDisabled
	}

	if config.Endpoint == "" {
		return nil, ErrOTelEndpointRequired
	}

	opts, err := logExporterOptions(config)
	if err != nil {
		return nil, err
	}

	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version.GetVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create log resource: %w", err)
	}

	timeout := time.Duration(config.BatchTimeout)
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter, sdklog.WithExportTimeout(timeout))),
	)

	providerMu.Lock()
	previous := provider
	provider = lp
	providerMu.Unlock()

	if previous != nil {
		_ = previous.Shutdown(ctx)
	}

	global.SetLoggerProvider(lp)

	return newOTelWriter(ctx, lp), nil
}

func logExporterOptions(config OTelConfig) ([]otlploggrpc.Option, error) {
	var opts []otlploggrpc.Option

	if u, err := url.Parse(config.Endpoint); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		opts = append(opts, otlploggrpc.WithEndpointURL(config.Endpoint))
	} else {
		opts = append(opts, otlploggrpc.WithEndpoint(config.Endpoint))
	}

	switch {
	case config.Insecure:
		opts = append(opts, otlploggrpc.WithInsecure())
	case config.TLS != nil:
		tlsConfig, err := NewTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup log TLS configuration: %w", err)
		}

		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewTLS(tlsConfig)))
	}

	if len(config.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(config.Headers))
	}

	return opts, nil
}

// ShutdownOTEL flushes and stops the OTLP log pipeline.
func ShutdownOTEL(ctx context.Context) error {
	providerMu.Lock()
	lp := provider
	provider = nil
	providerMu.Unlock()

	if lp == nil {
		return nil
	}

	if err := lp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down log provider: %w", err)
	}

	return nil
}

// NewTLSConfig loads the client certificate and CA pool named in cfg.
func NewTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	out := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		out.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile == "" {
		return out, nil
	}

	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errFailedToParseCACert
	}

	out.RootCAs = pool

	return out, nil
}
