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

package lifecycle

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

func TestCreateComponentLogger(t *testing.T) {
	l, err := CreateComponentLogger(context.Background(), "client", &logger.Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}

func TestCreateLoggerRejectsBadLevel(t *testing.T) {
	_, err := CreateLogger(context.Background(), &logger.Config{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize logger")
}

func TestCreateLoggerDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("OTEL_LOGS_ENABLED", "false")

	l, err := CreateLogger(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, zerolog.ErrorLevel, l.GetLevel())
}

func TestSetDebugTogglesLevel(t *testing.T) {
	l, err := CreateLogger(context.Background(), &logger.Config{Level: "info"})
	require.NoError(t, err)

	l.SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l.SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestWithMiniserver(t *testing.T) {
	var buf bytes.Buffer

	base := logger.Wrap(zerolog.New(&buf).Level(zerolog.ErrorLevel))
	l := WithMiniserver(base, "home")

	assert.Equal(t, zerolog.ErrorLevel, l.GetLevel())

	l.Error().Msg("login rejected")
	assert.Contains(t, buf.String(), `"miniserver":"home"`)
}

func TestShutdownLoggerWithoutPipeline(t *testing.T) {
	require.NoError(t, ShutdownLogger(context.Background()))
}
