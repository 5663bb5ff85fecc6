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

// Package config loads the exporter configuration from an optional YAML file
// with LOXONE_* environment overrides applied on top.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	errConfigNotFound = errors.New("config file not found")
	errNoMiniservers  = errors.New("no miniserver configured; provide a config file or set LOXONE_HOST, " +
		"LOXONE_USERNAME and LOXONE_PASSWORD")
)

//nolint:gochecknoglobals // tried in order when no path is given
var defaultPaths = []string{"config.yml", "config.yaml"}

// ConfigLoader decodes a configuration source into dst.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configs that can check themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	environ    func() []string
	logger     logger.Logger
}

// NewConfig initializes a new Config with the YAML file loader and the process
// environment.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.Nop()
	}

	return &Config{
		fileLoader: &FileConfigLoader{},
		environ:    os.Environ,
		logger:     log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// Load reads the config at path, or the first default file that exists when
// path is empty, applies environment overrides and validates the result.
// Without any file the config is built from the environment alone.
func (c *Config) Load(ctx context.Context, path string) (*ExporterConfig, error) {
	cfg := &ExporterConfig{}

	resolved, err := c.resolvePath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		if err := c.fileLoader.Load(ctx, resolved, cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		c.logger.Info().Str("path", resolved).Msg("Loaded configuration file")
	} else {
		c.logger.Info().Msg("No configuration file found, using environment only")
	}

	if err := applyEnvOverrides(cfg, environment(c.environ())); err != nil {
		return nil, err
	}

	cfg.dropHostless()

	if len(cfg.Miniservers) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errNoMiniservers)
	}

	cfg.applyDefaults()

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (*Config) resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", errConfigNotFound, path)
		}

		return path, nil
	}

	for _, candidate := range defaultPaths {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
