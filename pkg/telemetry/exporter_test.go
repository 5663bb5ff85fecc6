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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/metrics"
	"github.com/carverauto/loxone-exporter/pkg/models"
	"github.com/carverauto/loxone-exporter/pkg/state"
)

var errCollectorDown = errors.New("collector unavailable")

type fakeExporter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (*fakeExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (*fakeExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (f *fakeExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	return f.err
}

func (*fakeExporter) ForceFlush(context.Context) error { return nil }
func (*fakeExporter) Shutdown(context.Context) error   { return nil }

func (f *fakeExporter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func bedroomSnapshot() *models.Snapshot {
	value := 1.0

	st := models.NewStructure(
		[]*models.Entity{{
			UUID: "e1", Name: "Lamp", Type: "Switch", RoomUUID: "r1",
			Fields: map[string]*models.Field{"active": {UUID: "w1", Name: "active"}},
		}},
		map[string]models.Room{"r1": {UUID: "r1", Name: "Bedroom"}},
		nil, nil,
	)

	return &models.Snapshot{
		Name:       "home",
		Phase:      models.PhaseConnected,
		Connected:  true,
		LastUpdate: time.Unix(1700000000, 0),
		Structure:  st,
		Values:     map[string]models.Value{"w1": {Number: &value}},
	}
}

type staticSource struct{ snap *models.Snapshot }

func (s staticSource) Snapshot() *models.Snapshot { return s.snap }

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	t.Fatalf("metric %s not collected", name)

	return metricdata.Metrics{}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, 30*time.Second, cfg.ExportInterval())
	assert.Equal(t, 15*time.Second, cfg.ExportTimeout())

	cfg = Config{Interval: logger.Duration(time.Minute), Timeout: logger.Duration(5 * time.Second)}
	assert.Equal(t, time.Minute, cfg.ExportInterval())
	assert.Equal(t, 5*time.Second, cfg.ExportTimeout())
}

func TestNewRequiresEnabledEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil, metrics.Filter{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrTelemetryDisabled)

	_, err = New(context.Background(), Config{Enabled: true}, nil, metrics.Filter{}, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrEndpointRequired)
}

func TestExporterOptions(t *testing.T) {
	opts, err := exporterOptions(Config{Endpoint: "http://collector:4317", Insecure: true})
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	_, err = exporterOptions(Config{Endpoint: "collector:4317", TLS: &logger.TLSConfig{CAFile: "/nonexistent/ca.pem"}})
	require.Error(t, err)
}

func TestInstrumentsMirrorSnapshots(t *testing.T) {
	reader := sdkmetric.NewManualReader()

	e, err := newExporter(reader, nil, newStatusTracker(time.Now),
		[]metrics.SnapshotSource{staticSource{snap: bedroomSnapshot()}}, metrics.Filter{}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	value, ok := findMetric(t, rm, "loxone_control_value").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, value.DataPoints, 1)

	dp := value.DataPoints[0]
	assert.InDelta(t, 1.0, dp.Value, 0)

	name, _ := dp.Attributes.Value(attribute.Key("name"))
	room, _ := dp.Attributes.Value(attribute.Key("room"))
	assert.Equal(t, "Lamp", name.AsString())
	assert.Equal(t, "Bedroom", room.AsString())

	connected, ok := findMetric(t, rm, "loxone_exporter_connected").Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, connected.DataPoints, 1)
	assert.Equal(t, int64(1), connected.DataPoints[0].Value)

	last, ok := findMetric(t, rm, "loxone_exporter_last_update_timestamp_seconds").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.InDelta(t, 1.7e9, last.DataPoints[0].Value, 0.001)
}

func TestInstrumentsFollowTheStore(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	store := state.NewStore("home")

	e, err := newExporter(reader, nil, newStatusTracker(time.Now),
		[]metrics.SnapshotSource{store}, metrics.Filter{}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	connected, ok := findMetric(t, rm, "loxone_exporter_connected").Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(0), connected.DataPoints[0].Value)

	store.SetPhase(models.PhaseConnected)

	require.NoError(t, reader.Collect(context.Background(), &rm))

	connected, ok = findMetric(t, rm, "loxone_exporter_connected").Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), connected.DataPoints[0].Value)
}

func TestStatusTracksPushOutcomes(t *testing.T) {
	now := time.Unix(1700000000, 0)
	fake := &fakeExporter{err: errCollectorDown}
	status := newStatusTracker(func() time.Time { return now })
	exp := &trackingExporter{Exporter: fake, status: status, logger: logger.NewTestLogger()}

	assert.Equal(t, stateIdle, status.snapshot().State)

	require.ErrorIs(t, exp.Export(context.Background(), &metricdata.ResourceMetrics{}), errCollectorDown)

	s := status.snapshot()
	assert.Equal(t, stateRetrying, s.State)
	assert.Equal(t, 1, s.ConsecutiveFailures)
	assert.Equal(t, errCollectorDown.Error(), s.LastError)
	assert.Nil(t, s.LastSuccess)

	for i := 1; i < maxFailures; i++ {
		_ = exp.Export(context.Background(), &metricdata.ResourceMetrics{})
	}

	assert.Equal(t, metrics.ExportStateFailed, status.snapshot().State)

	fake.setErr(nil)
	require.NoError(t, exp.Export(context.Background(), &metricdata.ResourceMetrics{}))

	s = status.snapshot()
	assert.Equal(t, stateIdle, s.State)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Empty(t, s.LastError)
	require.NotNil(t, s.LastSuccess)
	assert.Equal(t, now, *s.LastSuccess)
}

func TestPeriodicPipelineReportsStatus(t *testing.T) {
	fake := &fakeExporter{}
	status := newStatusTracker(time.Now)
	reader := sdkmetric.NewPeriodicReader(
		&trackingExporter{Exporter: fake, status: status, logger: logger.NewTestLogger()},
		sdkmetric.WithInterval(time.Hour),
	)

	e, err := newExporter(reader, nil, status,
		[]metrics.SnapshotSource{staticSource{snap: bedroomSnapshot()}}, metrics.Filter{}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, e.provider.ForceFlush(context.Background()))
	assert.NotNil(t, e.ExportStatus().LastSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
}

func TestRunIgnoresFailedFinalFlush(t *testing.T) {
	fake := &fakeExporter{err: errCollectorDown}
	status := newStatusTracker(time.Now)
	reader := sdkmetric.NewPeriodicReader(
		&trackingExporter{Exporter: fake, status: status, logger: logger.NewTestLogger()},
		sdkmetric.WithInterval(time.Hour),
	)

	e, err := newExporter(reader, nil, status,
		[]metrics.SnapshotSource{staticSource{snap: bedroomSnapshot()}}, metrics.Filter{}, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Run(ctx), "an unreachable collector does not fail shutdown")
	assert.Equal(t, 1, fake.calls)
	assert.Contains(t, e.ExportStatus().LastError, errCollectorDown.Error())
}
