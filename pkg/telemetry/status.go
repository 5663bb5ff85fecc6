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

package telemetry

import (
	"context"
	"sync"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/metrics"
)

const (
	stateIdle     = "idle"
	stateRetrying = "retrying"

	// maxFailures consecutive failed pushes mark the exporter as failed.
	maxFailures = 10
)

type statusTracker struct {
	mu          sync.Mutex
	now         func() time.Time
	lastSuccess time.Time
	failures    int
	lastErr     string
}

func newStatusTracker(now func() time.Time) *statusTracker {
	return &statusTracker{now: now}
}

// record stores the outcome of one push and returns the resulting state.
func (t *statusTracker) record(err error) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		t.lastSuccess = t.now()
		t.failures = 0
		t.lastErr = ""

		return stateIdle
	}

	t.failures++
	t.lastErr = err.Error()

	return t.stateLocked()
}

func (t *statusTracker) stateLocked() string {
	switch {
	case t.failures >= maxFailures:
		return metrics.ExportStateFailed
	case t.failures > 0:
		return stateRetrying
	default:
		return stateIdle
	}
}

func (t *statusTracker) snapshot() metrics.ExportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := metrics.ExportStatus{
		State:               t.stateLocked(),
		ConsecutiveFailures: t.failures,
		LastError:           t.lastErr,
	}

	if !t.lastSuccess.IsZero() {
		ts := t.lastSuccess
		status.LastSuccess = &ts
	}

	return status
}

// trackingExporter records every push outcome before handing it back to the
// periodic reader.
type trackingExporter struct {
	sdkmetric.Exporter

	status *statusTracker
	logger logger.Logger
}

func (e *trackingExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	err := e.Exporter.Export(ctx, rm)

	switch state := e.status.record(err); state {
	case stateIdle:
	case metrics.ExportStateFailed:
		e.logger.Error().Err(err).Msg("OTLP metrics export keeps failing")
	default:
		e.logger.Warn().Err(err).Msg("OTLP metrics export failed")
	}

	return err
}
