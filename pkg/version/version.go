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

// Package version provides build metadata for the exporter.
package version

// Overridden with -ldflags "-X github.com/carverauto/loxone-exporter/pkg/version.version=...".
//
//nolint:gochecknoglobals // ldflags targets
var (
	version   = "dev"
	buildID   = "dev"
	buildDate = "unknown"
)

// GetVersion is also reported as service.version on OTLP resources.
func GetVersion() string {
	return version
}

// GetBuildID returns the current build ID, normally the commit hash.
func GetBuildID() string {
	return buildID
}

// GetBuildDate returns the build timestamp.
func GetBuildDate() string {
	return buildDate
}

// GetFullVersion formats version and build ID for banners and --version.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}
