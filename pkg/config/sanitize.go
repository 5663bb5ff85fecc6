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

import "encoding/json"

const redacted = "***"

// Redacted returns a copy that is safe to log: passwords and OTLP header
// values (metrics and logs) are masked.
func (c *ExporterConfig) Redacted() ExporterConfig {
	out := *c

	out.Miniservers = make([]MiniserverConfig, len(c.Miniservers))
	for i, ms := range c.Miniservers {
		if ms.Password != "" {
			ms.Password = redacted
		}

		out.Miniservers[i] = ms
	}

	out.OpenTelemetry.Headers = maskValues(c.OpenTelemetry.Headers)

	if c.Logging != nil {
		logging := *c.Logging
		logging.OTel.Headers = maskValues(c.Logging.OTel.Headers)
		out.Logging = &logging
	}

	return out
}

func maskValues(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}

	out := make(map[string]string, len(in))
	for k := range in {
		out[k] = redacted
	}

	return out
}

// RedactedJSON renders the redacted config for debug logging.
func (c *ExporterConfig) RedactedJSON() ([]byte, error) {
	return json.Marshal(c.Redacted())
}
