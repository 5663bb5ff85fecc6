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

package config

import (
	"fmt"
	"net"
	"path"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/loxone/client"
	"github.com/carverauto/loxone-exporter/pkg/metrics"
	"github.com/carverauto/loxone-exporter/pkg/telemetry"
)

const (
	defaultListenAddress = "0.0.0.0"
	defaultListenPort    = 9504
	defaultPort          = 80
	defaultTLSPort       = 443

	minOTLPInterval = 10 * time.Second
	maxOTLPInterval = 300 * time.Second
	minOTLPTimeout  = 5 * time.Second
	maxOTLPTimeout  = 60 * time.Second
)

// MiniserverConfig describes one controller connection.
type MiniserverConfig struct {
	Name            string `json:"name" yaml:"name"`
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	Username        string `json:"username" yaml:"username"`
	Password        string `json:"password" yaml:"password"`
	UseTLS          bool   `json:"use_tls" yaml:"use_tls"`
	StructureSource string `json:"structure_source" yaml:"structure_source"`
}

// ExporterConfig is the complete exporter configuration.
type ExporterConfig struct {
	Miniservers       []MiniserverConfig `json:"miniservers" yaml:"miniservers"`
	ListenAddress     string             `json:"listen_address" yaml:"listen_address"`
	ListenPort        int                `json:"listen_port" yaml:"listen_port"`
	ExcludeRooms      []string           `json:"exclude_rooms" yaml:"exclude_rooms"`
	ExcludeTypes      []string           `json:"exclude_types" yaml:"exclude_types"`
	ExcludeNames      []string           `json:"exclude_names" yaml:"exclude_names"`
	IncludeTextValues bool               `json:"include_text_values" yaml:"include_text_values"`
	Logging           *logger.Config     `json:"logging" yaml:"logging"`
	OpenTelemetry     telemetry.Config   `json:"opentelemetry" yaml:"opentelemetry"`
}

// ListenAddr returns the host:port the metrics server binds to.
func (c *ExporterConfig) ListenAddr() string {
	return net.JoinHostPort(c.ListenAddress, fmt.Sprint(c.ListenPort))
}

// Filter returns the export filter configured for the collector.
func (c *ExporterConfig) Filter() metrics.Filter {
	return metrics.Filter{
		ExcludeRooms:      c.ExcludeRooms,
		ExcludeTypes:      c.ExcludeTypes,
		ExcludeNames:      c.ExcludeNames,
		IncludeTextValues: c.IncludeTextValues,
	}
}

// dropHostless removes entries without a host, such as the placeholder the
// environment overrides create when no LOXONE_HOST is set.
func (c *ExporterConfig) dropHostless() {
	kept := c.Miniservers[:0]

	for _, ms := range c.Miniservers {
		if ms.Host != "" {
			kept = append(kept, ms)
		}
	}

	c.Miniservers = kept
}

func (c *ExporterConfig) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = defaultListenAddress
	}

	if c.ListenPort == 0 {
		c.ListenPort = defaultListenPort
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	for i := range c.Miniservers {
		ms := &c.Miniservers[i]

		if ms.Name == "" {
			ms.Name = ms.Host
		}

		if ms.Port == 0 {
			ms.Port = defaultPort
			if ms.UseTLS {
				ms.Port = defaultTLSPort
			}
		}

		if ms.StructureSource == "" {
			ms.StructureSource = string(client.StructureFromWebSocket)
		}
	}
}

// Validate checks required fields and value ranges. It stops at the first
// problem.
func (c *ExporterConfig) Validate() error {
	if len(c.Miniservers) == 0 {
		return fmt.Errorf("%w: at least one miniserver must be configured", ErrInvalidConfig)
	}

	if err := validatePort(c.ListenPort, "listen_port"); err != nil {
		return err
	}

	if net.ParseIP(c.ListenAddress) == nil {
		return fmt.Errorf("%w: listen_address must be an IP address, got %q", ErrInvalidConfig, c.ListenAddress)
	}

	if c.Logging != nil {
		if _, err := logger.ParseLevel(c.Logging); err != nil {
			return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
		}

		if err := logger.ValidateFormat(c.Logging.Format); err != nil {
			return fmt.Errorf("%w: logging.format: %w", ErrInvalidConfig, err)
		}
	}

	names := make(map[string]struct{}, len(c.Miniservers))

	for _, ms := range c.Miniservers {
		if err := ms.Validate(); err != nil {
			return err
		}

		if _, dup := names[ms.Name]; dup {
			return fmt.Errorf("%w: duplicate miniserver name %q", ErrInvalidConfig, ms.Name)
		}

		names[ms.Name] = struct{}{}
	}

	for _, pattern := range c.ExcludeNames {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: exclude_names pattern %q: %w", ErrInvalidConfig, pattern, err)
		}
	}

	return validateOTLP(&c.OpenTelemetry)
}

// Validate checks one miniserver entry.
func (m MiniserverConfig) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: miniserver name must not be empty", ErrInvalidConfig)
	}

	if m.Host == "" {
		return fmt.Errorf("%w: miniserver %q: host must not be empty", ErrInvalidConfig, m.Name)
	}

	if m.Username == "" {
		return fmt.Errorf("%w: miniserver %q: username must not be empty", ErrInvalidConfig, m.Name)
	}

	if m.Password == "" {
		return fmt.Errorf("%w: miniserver %q: password must not be empty", ErrInvalidConfig, m.Name)
	}

	if err := validatePort(m.Port, fmt.Sprintf("miniserver %q port", m.Name)); err != nil {
		return err
	}

	switch client.StructureSource(m.StructureSource) {
	case client.StructureFromWebSocket, client.StructureFromHTTP:
	default:
		return fmt.Errorf("%w: miniserver %q: structure_source must be %q or %q, got %q", ErrInvalidConfig,
			m.Name, client.StructureFromWebSocket, client.StructureFromHTTP, m.StructureSource)
	}

	return nil
}

func validatePort(port int, field string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %s must be between 1 and 65535, got %d", ErrInvalidConfig, field, port)
	}

	return nil
}

func validateOTLP(cfg *telemetry.Config) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Endpoint == "" {
		return fmt.Errorf("%w: opentelemetry.endpoint is required when export is enabled", ErrInvalidConfig)
	}

	interval, timeout := cfg.ExportInterval(), cfg.ExportTimeout()

	if interval < minOTLPInterval || interval > maxOTLPInterval {
		return fmt.Errorf("%w: opentelemetry.interval must be between %s and %s, got %s",
			ErrInvalidConfig, minOTLPInterval, maxOTLPInterval, interval)
	}

	if timeout < minOTLPTimeout || timeout > maxOTLPTimeout {
		return fmt.Errorf("%w: opentelemetry.timeout must be between %s and %s, got %s",
			ErrInvalidConfig, minOTLPTimeout, maxOTLPTimeout, timeout)
	}

	if timeout >= interval {
		return fmt.Errorf("%w: opentelemetry.timeout (%s) must be less than interval (%s)",
			ErrInvalidConfig, timeout, interval)
	}

	return nil
}
