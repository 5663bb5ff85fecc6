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
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

const (
	envPrefix           = "LOXONE_"
	envOTLPHeaderPrefix = envPrefix + "OTLP_AUTH_HEADER_"
)

// environment indexes KEY=VALUE pairs as returned by os.Environ.
func environment(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))

	for _, kv := range pairs {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	return env
}

// applyEnvOverrides layers LOXONE_* variables over cfg. Connection variables
// address the first miniserver, which is created when the file has none.
func applyEnvOverrides(cfg *ExporterConfig, vars map[string]string) error {
	env := func(name string) string {
		return strings.TrimSpace(vars[envPrefix+name])
	}

	if len(cfg.Miniservers) == 0 {
		cfg.Miniservers = []MiniserverConfig{{}}
	}

	ms := &cfg.Miniservers[0]

	if v := env("HOST"); v != "" {
		ms.Host = v
	}

	if v := env("USERNAME"); v != "" {
		ms.Username = v
	}

	if v := env("PASSWORD"); v != "" {
		ms.Password = v
	}

	if v := env("NAME"); v != "" {
		ms.Name = v
	}

	if v := env("PORT"); v != "" {
		port, err := parseInt(v, "LOXONE_PORT")
		if err != nil {
			return err
		}

		ms.Port = port
	}

	if v := env("LISTEN_PORT"); v != "" {
		port, err := parseInt(v, "LOXONE_LISTEN_PORT")
		if err != nil {
			return err
		}

		cfg.ListenPort = port
	}

	if v := env("LOG_LEVEL"); v != "" {
		if cfg.Logging == nil {
			cfg.Logging = logger.DefaultConfig()
		}

		cfg.Logging.Level = strings.ToLower(v)
	}

	return applyOTLPEnv(cfg, vars, env)
}

func applyOTLPEnv(cfg *ExporterConfig, vars map[string]string, env func(string) string) error {
	otlp := &cfg.OpenTelemetry

	if v := env("OTLP_ENABLED"); v != "" {
		otlp.Enabled = parseBool(v)
	}

	if v := env("OTLP_ENDPOINT"); v != "" {
		otlp.Endpoint = v
	}

	if v := env("OTLP_INTERVAL"); v != "" {
		d, err := parseSeconds(v, "LOXONE_OTLP_INTERVAL")
		if err != nil {
			return err
		}

		otlp.Interval = logger.Duration(d)
	}

	if v := env("OTLP_TIMEOUT"); v != "" {
		d, err := parseSeconds(v, "LOXONE_OTLP_TIMEOUT")
		if err != nil {
			return err
		}

		otlp.Timeout = logger.Duration(d)
	}

	for key, value := range vars {
		if !strings.HasPrefix(key, envOTLPHeaderPrefix) {
			continue
		}

		name := headerName(strings.TrimPrefix(key, envOTLPHeaderPrefix))
		if name == "" {
			continue
		}

		if otlp.Headers == nil {
			otlp.Headers = make(map[string]string)
		}

		otlp.Headers[name] = value
	}

	return nil
}

// headerName turns X_API_KEY into X-Api-Key.
func headerName(raw string) string {
	parts := strings.Split(strings.ToLower(raw), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}

	return strings.Trim(strings.Join(parts, "-"), "-")
}

func parseInt(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfig, name, v)
	}

	return n, nil
}

// parseSeconds accepts a plain number of seconds or a Go duration string.
func parseSeconds(v, name string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be seconds or a duration, got %q", ErrInvalidConfig, name, v)
	}

	return d, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
