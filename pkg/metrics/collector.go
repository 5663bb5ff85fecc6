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

// Package metrics exposes the in-memory Miniserver state to Prometheus. Every
// scrape reads the latest published snapshots; nothing is cached between
// scrapes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/models"
	"github.com/carverauto/loxone-exporter/pkg/version"
)

//go:generate mockgen -destination=mock_metrics.go -package=metrics github.com/carverauto/loxone-exporter/pkg/metrics SnapshotSource,ExportStatusProvider

// SnapshotSource supplies the latest state of one Miniserver.
type SnapshotSource interface {
	Snapshot() *models.Snapshot
}

var controlLabels = []string{"miniserver", "name", "room", "category", "type", "subcontrol"}

// Collector is a prometheus.Collector over a fixed set of Miniservers.
type Collector struct {
	sources []SnapshotSource
	filter  Filter
	logger  logger.Logger

	controlValue   *prometheus.Desc
	controlInfo    *prometheus.Desc
	connected      *prometheus.Desc
	lastUpdate     *prometheus.Desc
	discovered     *prometheus.Desc
	exported       *prometheus.Desc
	failures       *prometheus.Desc
	up             *prometheus.Desc
	scrapeDuration *prometheus.Desc
	buildInfo      *prometheus.Desc

	scrapeErrors prometheus.Counter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from sources in order.
func NewCollector(sources []SnapshotSource, filter Filter, log logger.Logger) *Collector {
	perMiniserver := []string{"miniserver"}

	return &Collector{
		sources: sources,
		filter:  filter,
		logger:  log,

		controlValue: prometheus.NewDesc("loxone_control_value",
			"Current numeric value of a control state", controlLabels, nil),
		controlInfo: prometheus.NewDesc("loxone_control_info",
			"Text value of a control state", append(append([]string{}, controlLabels...), "value"), nil),
		connected: prometheus.NewDesc("loxone_exporter_connected",
			"WebSocket connection status per miniserver", perMiniserver, nil),
		lastUpdate: prometheus.NewDesc("loxone_exporter_last_update_timestamp_seconds",
			"Unix timestamp of last received value event", perMiniserver, nil),
		discovered: prometheus.NewDesc("loxone_exporter_controls_discovered",
			"Controls found in structure file", perMiniserver, nil),
		exported: prometheus.NewDesc("loxone_exporter_controls_exported",
			"Controls exported after filtering", perMiniserver, nil),
		failures: prometheus.NewDesc("loxone_exporter_consecutive_failures",
			"Connection attempts failed since the last successful subscription", perMiniserver, nil),
		up: prometheus.NewDesc("loxone_exporter_up",
			"1 if exporter process is running", nil, nil),
		scrapeDuration: prometheus.NewDesc("loxone_exporter_scrape_duration_seconds",
			"Time taken to generate /metrics response", nil, nil),
		buildInfo: prometheus.NewDesc("loxone_exporter_build_info",
			"Build metadata", []string{"version", "commit", "build_date"}, nil),

		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loxone_exporter_scrape_errors_total",
			Help: "Errors encountered while generating metrics",
		}),
	}
}

// NewRegistry returns a registry carrying the collector plus the Go runtime
// and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.controlValue
	if c.filter.IncludeTextValues {
		ch <- c.controlInfo
	}

	ch <- c.connected
	ch <- c.lastUpdate
	ch <- c.discovered
	ch <- c.exported
	ch <- c.failures
	ch <- c.up
	ch <- c.scrapeDuration
	ch <- c.buildInfo
	ch <- c.scrapeErrors.Desc()
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	start := time.Now()

	for _, src := range c.sources {
		c.collectSource(ch, src)
	}

	ch <- c.scrapeErrors

	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1,
		version.GetVersion(), version.GetBuildID(), version.GetBuildDate())
	ch <- prometheus.MustNewConstMetric(c.scrapeDuration, prometheus.GaugeValue, time.Since(start).Seconds())
}

// collectSource isolates one Miniserver so a failure there still lets the
// others be scraped. Failures are counted in scrape_errors_total.
func (c *Collector) collectSource(ch chan<- prometheus.Metric, src SnapshotSource) {
	defer func() {
		if r := recover(); r != nil {
			c.scrapeErrors.Inc()
			c.logger.Error().Interface("panic", r).Msg("Failed to collect miniserver metrics")
		}
	}()

	c.collectMiniserver(ch, src.Snapshot())
}

func (c *Collector) collectMiniserver(ch chan<- prometheus.Metric, snap *models.Snapshot) {
	if snap == nil {
		return
	}

	samples, exported, duplicates := c.filter.Samples(snap)
	if duplicates > 0 {
		c.logger.Debug().
			Str("miniserver", snap.Name).
			Int("duplicates", duplicates).
			Msg("Dropped samples with repeated label sets")
	}

	for _, s := range samples {
		if s.IsText {
			ch <- prometheus.MustNewConstMetric(c.controlInfo, prometheus.GaugeValue, 1, append(s.labels(), s.Text)...)
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.controlValue, prometheus.GaugeValue, s.Number, s.labels()...)
	}

	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(snap.Connected), snap.Name)
	ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, unixSeconds(snap.LastUpdate), snap.Name)
	ch <- prometheus.MustNewConstMetric(c.discovered, prometheus.GaugeValue, float64(snap.EntityCount()), snap.Name)
	ch <- prometheus.MustNewConstMetric(c.exported, prometheus.GaugeValue, float64(exported), snap.Name)
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(snap.ConsecutiveFailures), snap.Name)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}

	return float64(t.UnixNano()) / float64(time.Second)
}
