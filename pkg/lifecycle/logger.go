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

// Package lifecycle builds the injectable loggers handed to each component
// and tears the log pipeline down on exit.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

// CreateLogger builds a logger from config, falling back to the environment
// defaults when config is nil.
func CreateLogger(ctx context.Context, config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	z, err := logger.Build(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Wrap(z), nil
}

// CreateComponentLogger is CreateLogger with a component field on every event.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	base, err := CreateLogger(ctx, config)
	if err != nil {
		return nil, err
	}

	return logger.Wrap(base.WithComponent(component)), nil
}

// WithMiniserver tags every event with the controller it belongs to.
func WithMiniserver(base logger.Logger, name string) logger.Logger {
	return logger.Wrap(base.With().Str("miniserver", name).Logger())
}

// ShutdownLogger flushes pending OTLP log records.
func ShutdownLogger(ctx context.Context) error {
	if err := logger.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down logger: %w", err)
	}

	return nil
}
