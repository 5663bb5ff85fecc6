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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/telemetry"
)

const sampleYAML = `
miniservers:
  - name: home
    host: 192.168.1.10
    username: admin
    password: secret
  - host: cabin.example
    username: viewer
    password: hunter2
    use_tls: true
    structure_source: http
listen_port: 9600
exclude_rooms: [Garage]
exclude_types: [Pushbutton]
exclude_names: ["Test*"]
include_text_values: true
logging:
  level: debug
  format: text
opentelemetry:
  enabled: true
  endpoint: collector:4317
  interval: 60s
  timeout: 10s
`

func testConfig(env ...string) *Config {
	c := NewConfig(nil)
	c.environ = func() []string { return env }

	return c
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))

	return p
}

func TestLoadYAML(t *testing.T) {
	cfg, err := testConfig().Load(context.Background(), writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Miniservers, 2)

	home := cfg.Miniservers[0]
	assert.Equal(t, "home", home.Name)
	assert.Equal(t, 80, home.Port)
	assert.Equal(t, "ws", home.StructureSource)

	cabin := cfg.Miniservers[1]
	assert.Equal(t, "cabin.example", cabin.Name, "name defaults to the host")
	assert.Equal(t, 443, cabin.Port, "TLS selects port 443")
	assert.Equal(t, "http", cabin.StructureSource)

	assert.Equal(t, "0.0.0.0:9600", cfg.ListenAddr())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, logger.FormatText, cfg.Logging.Format)
	assert.Equal(t, 60*time.Second, cfg.OpenTelemetry.ExportInterval())
	assert.Equal(t, 10*time.Second, cfg.OpenTelemetry.ExportTimeout())

	f := cfg.Filter()
	assert.Equal(t, []string{"Garage"}, f.ExcludeRooms)
	assert.Equal(t, []string{"Pushbutton"}, f.ExcludeTypes)
	assert.Equal(t, []string{"Test*"}, f.ExcludeNames)
	assert.True(t, f.IncludeTextValues)
}

func TestLoadDefaultPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleYAML), 0o600))
	t.Chdir(dir)

	cfg, err := testConfig().Load(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, cfg.Miniservers, 2)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := testConfig().Load(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	require.ErrorIs(t, err, errConfigNotFound)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := testConfig().Load(context.Background(), writeConfig(t, "miniservers: [unclosed"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadEnvironmentOnly(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := testConfig(
		"LOXONE_HOST=10.0.0.5",
		"LOXONE_USERNAME=admin",
		"LOXONE_PASSWORD=secret",
		"LOXONE_PORT=8080",
		"LOXONE_LISTEN_PORT=9700",
		"LOXONE_LOG_LEVEL=WARN",
		"UNRELATED=1",
	).Load(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, cfg.Miniservers, 1)
	ms := cfg.Miniservers[0]
	assert.Equal(t, "10.0.0.5", ms.Name)
	assert.Equal(t, 8080, ms.Port)
	assert.Equal(t, 9700, cfg.ListenPort)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadWithoutMiniserver(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := testConfig("LOXONE_USERNAME=admin").Load(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, errNoMiniservers)
}

func TestEnvironmentOverridesFirstMiniserver(t *testing.T) {
	cfg, err := testConfig(
		"LOXONE_HOST=10.9.9.9",
		"LOXONE_NAME=primary",
		"LOXONE_PASSWORD=override",
	).Load(context.Background(), writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.Miniservers[0].Name)
	assert.Equal(t, "10.9.9.9", cfg.Miniservers[0].Host)
	assert.Equal(t, "override", cfg.Miniservers[0].Password)
	assert.Equal(t, "hunter2", cfg.Miniservers[1].Password)
}

func TestEnvironmentOTLP(t *testing.T) {
	cfg, err := testConfig(
		"LOXONE_OTLP_ENABLED=yes",
		"LOXONE_OTLP_ENDPOINT=https://otlp.example:4317",
		"LOXONE_OTLP_INTERVAL=45",
		"LOXONE_OTLP_TIMEOUT=20s",
		"LOXONE_OTLP_AUTH_HEADER_X_API_KEY=abc",
		"LOXONE_OTLP_AUTH_HEADER_AUTHORIZATION=Bearer t",
	).Load(context.Background(), writeConfig(t, sampleYAML))
	require.NoError(t, err)

	otlp := cfg.OpenTelemetry
	assert.True(t, otlp.Enabled)
	assert.Equal(t, "https://otlp.example:4317", otlp.Endpoint)
	assert.Equal(t, 45*time.Second, otlp.ExportInterval())
	assert.Equal(t, 20*time.Second, otlp.ExportTimeout())
	assert.Equal(t, map[string]string{"X-Api-Key": "abc", "Authorization": "Bearer t"}, otlp.Headers)
}

func TestEnvironmentRejectsBadNumbers(t *testing.T) {
	for _, kv := range []string{"LOXONE_PORT=eighty", "LOXONE_LISTEN_PORT=x", "LOXONE_OTLP_INTERVAL=soon"} {
		_, err := testConfig(kv).Load(context.Background(), writeConfig(t, sampleYAML))
		require.ErrorIs(t, err, ErrInvalidConfig, kv)
	}
}

func TestHeaderName(t *testing.T) {
	assert.Equal(t, "X-Api-Key", headerName("X_API_KEY"))
	assert.Equal(t, "Authorization", headerName("AUTHORIZATION"))
	assert.Empty(t, headerName("_"))
}

func validConfig() *ExporterConfig {
	cfg := &ExporterConfig{
		Miniservers: []MiniserverConfig{{Name: "home", Host: "10.0.0.2", Username: "admin", Password: "secret"}},
		Logging:     &logger.Config{Level: "info"},
	}
	cfg.applyDefaults()

	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExporterConfig)
	}{
		{"no miniservers", func(c *ExporterConfig) { c.Miniservers = nil }},
		{"listen port", func(c *ExporterConfig) { c.ListenPort = 70000 }},
		{"listen address", func(c *ExporterConfig) { c.ListenAddress = "localhost" }},
		{"log level", func(c *ExporterConfig) { c.Logging.Level = "loud" }},
		{"log format", func(c *ExporterConfig) { c.Logging.Format = "xml" }},
		{"empty name", func(c *ExporterConfig) { c.Miniservers[0].Name = "" }},
		{"empty username", func(c *ExporterConfig) { c.Miniservers[0].Username = "" }},
		{"empty password", func(c *ExporterConfig) { c.Miniservers[0].Password = "" }},
		{"miniserver port", func(c *ExporterConfig) { c.Miniservers[0].Port = -1 }},
		{"structure source", func(c *ExporterConfig) { c.Miniservers[0].StructureSource = "ftp" }},
		{"duplicate name", func(c *ExporterConfig) { c.Miniservers = append(c.Miniservers, c.Miniservers[0]) }},
		{"bad glob", func(c *ExporterConfig) { c.ExcludeNames = []string{"[abc"} }},
		{"otlp endpoint", func(c *ExporterConfig) { c.OpenTelemetry = telemetry.Config{Enabled: true} }},
		{"otlp interval", func(c *ExporterConfig) {
			c.OpenTelemetry = telemetry.Config{Enabled: true, Endpoint: "c:4317", Interval: logger.Duration(5 * time.Second)}
		}},
		{"otlp timeout", func(c *ExporterConfig) {
			c.OpenTelemetry = telemetry.Config{Enabled: true, Endpoint: "c:4317", Timeout: logger.Duration(2 * time.Minute)}
		}},
		{"otlp timeout not below interval", func(c *ExporterConfig) {
			c.OpenTelemetry = telemetry.Config{
				Enabled:  true,
				Endpoint: "c:4317",
				Interval: logger.Duration(20 * time.Second),
				Timeout:  logger.Duration(20 * time.Second),
			}
		}},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidateOTLPDisabledIgnoresRanges(t *testing.T) {
	cfg := validConfig()
	cfg.OpenTelemetry = telemetry.Config{Interval: logger.Duration(time.Second)}

	assert.NoError(t, cfg.Validate())
}
