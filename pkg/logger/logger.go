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

// Package logger builds the zerolog loggers used across the exporter, with an
// optional OTLP log writer mirroring every event to a collector.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	outputStdout = "stdout"
	outputStderr = "stderr"

	FormatJSON = "json"
	FormatText = "text"
)

var errInvalidFormat = errors.New("log format must be json or text")

// Config selects level, destination and formatting of log output.
type Config struct {
	Level      string     `json:"level" yaml:"level"`
	Debug      bool       `json:"debug" yaml:"debug"`
	Output     string     `json:"output" yaml:"output"`
	Format     string     `json:"format" yaml:"format"`
	TimeFormat string     `json:"time_format" yaml:"time_format"`
	OTel       OTelConfig `json:"otel" yaml:"otel"`
}

// ParseLevel resolves the effective level of a config. Debug wins over Level.
func ParseLevel(config *Config) (zerolog.Level, error) {
	switch {
	case config.Debug:
		return zerolog.DebugLevel, nil
	case config.Level == "":
		return zerolog.InfoLevel, nil
	default:
		return zerolog.ParseLevel(config.Level)
	}
}

// ValidateFormat accepts "", json and text.
func ValidateFormat(format string) error {
	switch format {
	case "", FormatJSON, FormatText:
		return nil
	default:
		return fmt.Errorf("%w, got %q", errInvalidFormat, format)
	}
}

// NewOutput returns the writer selected by the config. The text format
// renders events for humans on the local stream only. When OTel logging is
// enabled every event is also handed to the OTLP log exporter.
func NewOutput(ctx context.Context, config *Config) (io.Writer, error) {
	if err := ValidateFormat(config.Format); err != nil {
		return nil, err
	}

	var local io.Writer = os.Stdout
	if config.Output == outputStderr {
		local = os.Stderr
	}

	if config.Format == FormatText {
		local = zerolog.ConsoleWriter{Out: local, NoColor: true, TimeFormat: time.RFC3339}
	}

	if !config.OTel.Enabled || config.OTel.Endpoint == "" {
		return local, nil
	}

	otelWriter, err := NewOTELWriter(ctx, config.OTel)
	if err != nil {
		return nil, err
	}

	return zerolog.MultiLevelWriter(local, otelWriter), nil
}

// Build creates a timestamped logger from config. Credentials embedded in
// messages are masked before any writer sees them. A custom TimeFormat
// applies process-wide since zerolog keeps it in a package variable.
func Build(ctx context.Context, config *Config) (zerolog.Logger, error) {
	level, err := ParseLevel(config)
	if err != nil {
		return zerolog.Nop(), err
	}

	output, err := NewOutput(ctx, config)
	if err != nil {
		return zerolog.Nop(), err
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return zerolog.New(NewRedactingWriter(output)).Level(level).With().Timestamp().Logger(), nil
}

// Shutdown flushes the OTLP log pipeline if one was started.
func Shutdown(ctx context.Context) error {
	return ShutdownOTEL(ctx)
}
