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

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

const (
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"

	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ExportStateFailed = "failed"

	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

var errServerRunning = errors.New("metrics server already running")

// ExportStatus is the health of the push exporter as reported on /healthz.
type ExportStatus struct {
	State               string     `json:"state"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
}

// ExportStatusProvider is implemented by the push exporter.
type ExportStatusProvider interface {
	ExportStatus() ExportStatus
}

// MiniserverHealth is the per-controller part of the health report.
type MiniserverHealth struct {
	Name                string  `json:"name"`
	Connected           bool    `json:"connected"`
	Phase               string  `json:"phase"`
	LastUpdate          float64 `json:"last_update"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	ControlsDiscovered  int     `json:"controls_discovered"`
	ControlsExported    int     `json:"controls_exported"`
}

// HealthReport is the body served on /healthz.
type HealthReport struct {
	Status      string             `json:"status"`
	Miniservers []MiniserverHealth `json:"miniservers"`
	OTLP        *ExportStatus      `json:"otlp,omitempty"`
}

// Server serves /metrics and /healthz.
type Server struct {
	addr     string
	registry *prometheus.Registry
	sources  []SnapshotSource
	filter   Filter
	export   ExportStatusProvider
	logger   logger.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server. export may be nil when push export is disabled.
func NewServer(addr string, registry *prometheus.Registry, sources []SnapshotSource, filter Filter,
	export ExportStatusProvider, log logger.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		sources:  sources,
		filter:   filter,
		export:   export,
		logger:   log,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:          promErrorLog{logger: s.logger},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})

	mux.Handle(MetricsPath, promhttp.InstrumentMetricHandler(s.registry, handler))
	mux.HandleFunc(HealthPath, s.handleHealth)

	return mux
}

// Report builds the current health report.
func (s *Server) Report() HealthReport {
	report := HealthReport{Miniservers: make([]MiniserverHealth, 0, len(s.sources))}

	connected := 0

	for _, src := range s.sources {
		snap := src.Snapshot()
		if snap == nil {
			continue
		}

		_, exported, _ := s.filter.Samples(snap)

		if snap.Connected {
			connected++
		}

		report.Miniservers = append(report.Miniservers, MiniserverHealth{
			Name:                snap.Name,
			Connected:           snap.Connected,
			Phase:               snap.Phase.String(),
			LastUpdate:          unixSeconds(snap.LastUpdate),
			ConsecutiveFailures: snap.ConsecutiveFailures,
			ControlsDiscovered:  snap.EntityCount(),
			ControlsExported:    exported,
		})
	}

	switch {
	case connected > 0 && connected == len(report.Miniservers):
		report.Status = StatusHealthy
	case connected > 0:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}

	if s.export != nil {
		status := s.export.ExportStatus()
		report.OTLP = &status

		if status.State == ExportStateFailed && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.Report()

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write health report")
	}
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		_ = ln.Close()

		return errServerRunning
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.server = srv
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
	}()

	s.logger.Info().Str("address", ln.Addr().String()).Msg("Metrics server listening")

	errCh := make(chan error, 1)

	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}

	<-errCh

	return nil
}

// promErrorLog adapts the component logger to promhttp.Logger.
type promErrorLog struct {
	logger logger.Logger
}

func (l promErrorLog) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
