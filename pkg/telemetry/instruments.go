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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/loxone-exporter/pkg/metrics"
)

type instruments struct {
	value      metric.Float64ObservableGauge
	info       metric.Int64ObservableGauge
	connected  metric.Int64ObservableGauge
	lastUpdate metric.Float64ObservableGauge
	discovered metric.Int64ObservableGauge
	exported   metric.Int64ObservableGauge
	failures   metric.Int64ObservableGauge
}

func registerInstruments(meter metric.Meter, sources []metrics.SnapshotSource, filter metrics.Filter) error {
	var (
		in  instruments
		err error
	)

	if in.value, err = meter.Float64ObservableGauge("loxone_control_value",
		metric.WithDescription("Current numeric value of a control state")); err != nil {
		return fmt.Errorf("failed to create control value gauge: %w", err)
	}

	if in.info, err = meter.Int64ObservableGauge("loxone_control_info",
		metric.WithDescription("Text value of a control state")); err != nil {
		return fmt.Errorf("failed to create control info gauge: %w", err)
	}

	if in.connected, err = meter.Int64ObservableGauge("loxone_exporter_connected",
		metric.WithDescription("WebSocket connection status per miniserver")); err != nil {
		return fmt.Errorf("failed to create connected gauge: %w", err)
	}

	if in.lastUpdate, err = meter.Float64ObservableGauge("loxone_exporter_last_update_timestamp_seconds",
		metric.WithDescription("Unix timestamp of last received value event"), metric.WithUnit("s")); err != nil {
		return fmt.Errorf("failed to create last update gauge: %w", err)
	}

	if in.discovered, err = meter.Int64ObservableGauge("loxone_exporter_controls_discovered",
		metric.WithDescription("Controls found in structure file")); err != nil {
		return fmt.Errorf("failed to create discovered gauge: %w", err)
	}

	if in.exported, err = meter.Int64ObservableGauge("loxone_exporter_controls_exported",
		metric.WithDescription("Controls exported after filtering")); err != nil {
		return fmt.Errorf("failed to create exported gauge: %w", err)
	}

	if in.failures, err = meter.Int64ObservableGauge("loxone_exporter_consecutive_failures",
		metric.WithDescription("Connection attempts failed since the last successful subscription")); err != nil {
		return fmt.Errorf("failed to create failures gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, src := range sources {
			in.observe(o, src, filter)
		}

		return nil
	}, in.value, in.info, in.connected, in.lastUpdate, in.discovered, in.exported, in.failures)
	if err != nil {
		return fmt.Errorf("failed to register gauge callback: %w", err)
	}

	return nil
}

func (in *instruments) observe(o metric.Observer, src metrics.SnapshotSource, filter metrics.Filter) {
	snap := src.Snapshot()
	if snap == nil {
		return
	}

	samples, exported, _ := filter.Samples(snap)

	for _, s := range samples {
		attrs := []attribute.KeyValue{
			attribute.String("miniserver", s.Miniserver),
			attribute.String("name", s.Name),
			attribute.String("room", s.Room),
			attribute.String("category", s.Category),
			attribute.String("type", s.Type),
			attribute.String("subcontrol", s.Field),
		}

		if s.IsText {
			o.ObserveInt64(in.info, 1, metric.WithAttributes(append(attrs, attribute.String("value", s.Text))...))
			continue
		}

		o.ObserveFloat64(in.value, s.Number, metric.WithAttributes(attrs...))
	}

	ms := metric.WithAttributes(attribute.String("miniserver", snap.Name))

	connected := int64(0)
	if snap.Connected {
		connected = 1
	}

	lastUpdate := 0.0
	if !snap.LastUpdate.IsZero() {
		lastUpdate = float64(snap.LastUpdate.UnixMilli()) / 1000
	}

	o.ObserveInt64(in.connected, connected, ms)
	o.ObserveFloat64(in.lastUpdate, lastUpdate, ms)
	o.ObserveInt64(in.discovered, int64(snap.EntityCount()), ms)
	o.ObserveInt64(in.exported, int64(exported), ms)
	o.ObserveInt64(in.failures, int64(snap.ConsecutiveFailures), ms)
}
