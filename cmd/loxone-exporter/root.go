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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/loxone-exporter/pkg/config"
	"github.com/carverauto/loxone-exporter/pkg/lifecycle"
	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/loxone/auth"
	"github.com/carverauto/loxone-exporter/pkg/loxone/client"
	"github.com/carverauto/loxone-exporter/pkg/loxone/transport"
	"github.com/carverauto/loxone-exporter/pkg/metrics"
	"github.com/carverauto/loxone-exporter/pkg/state"
	"github.com/carverauto/loxone-exporter/pkg/telemetry"
	"github.com/carverauto/loxone-exporter/pkg/version"
)

const (
	componentName      = "loxone-exporter"
	logShutdownTimeout = 5 * time.Second
)

var (
	errFailedToLoadConfig = errors.New("failed to load config")
	errFailedToInitLogger = errors.New("failed to initialize logger")
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   componentName,
		Short: "Prometheus exporter for Loxone Miniservers",
		Long: `loxone-exporter keeps a WebSocket connection to each configured Loxone
Miniserver, tracks every control state it reports and serves the values on
/metrics. Without --config the files config.yml and config.yaml in the working
directory are tried, then LOXONE_* environment variables alone.`,
		Version:      version.GetFullVersion(),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("%s %s\n", componentName, version.GetFullVersion()))
	root.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	root.AddCommand(newVersionCmd())

	return root
}

func run(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewConfig(nil).Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	log, err := lifecycle.CreateComponentLogger(ctx, componentName, cfg.Logging)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToInitLogger, err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), logShutdownTimeout)
		defer cancel()

		_ = lifecycle.ShutdownLogger(shutdownCtx)
	}()

	log.Info().
		Str("version", version.GetFullVersion()).
		Int("miniservers", len(cfg.Miniservers)).
		Msg("Starting exporter")

	if data, err := cfg.RedactedJSON(); err == nil {
		log.Debug().RawJSON("config", data).Msg("Effective configuration")
	}

	managers, sources := buildManagers(cfg, log)
	filter := cfg.Filter()

	g, gctx := errgroup.WithContext(ctx)

	var export metrics.ExportStatusProvider

	exp, err := telemetry.New(ctx, cfg.OpenTelemetry, sources, filter, log)

	switch {
	case errors.Is(err, telemetry.ErrTelemetryDisabled):
		log.Debug().Msg("OTLP metrics export disabled")
	case err != nil:
		return err
	default:
		export = exp

		g.Go(func() error { return exp.Run(gctx) })
	}

	registry := metrics.NewRegistry(metrics.NewCollector(sources, filter, log))
	server := metrics.NewServer(cfg.ListenAddr(), registry, sources, filter, export, log)

	g.Go(func() error { return server.Run(gctx) })

	for _, m := range managers {
		g.Go(func() error { return m.Run(gctx) })
	}

	err = g.Wait()

	log.Info().Err(err).Msg("Exporter stopped")

	return err
}

// buildManagers wires one connection manager and state store per miniserver.
// Managers tag their own events with the miniserver name; the authenticator
// gets a tagged logger.
func buildManagers(cfg *config.ExporterConfig, log logger.Logger) ([]*client.Manager, []metrics.SnapshotSource) {
	managers := make([]*client.Manager, 0, len(cfg.Miniservers))
	sources := make([]metrics.SnapshotSource, 0, len(cfg.Miniservers))

	for _, ms := range cfg.Miniservers {
		msLog := lifecycle.WithMiniserver(log, ms.Name)
		store := state.NewStore(ms.Name)
		httpClient := transport.NewHTTPClient(ms.Host, ms.Port, ms.UseTLS, ms.Username, ms.Password, 0)

		source := client.StructureSource(ms.StructureSource)

		var structures client.StructureFetcher
		if source == client.StructureFromHTTP {
			structures = httpClient
		}

		managers = append(managers, client.NewManager(
			client.Options{
				Name:            ms.Name,
				Username:        ms.Username,
				Password:        ms.Password,
				StructureSource: source,
			},
			client.NewWebSocketDialer(&transport.Dialer{Host: ms.Host, Port: ms.Port, TLS: ms.UseTLS}),
			auth.NewAuthenticator(auth.Config{}, httpClient, msLog),
			structures,
			store,
			log,
		))
		sources = append(sources, store)

		msLog.Info().
			Str("host", ms.Host).
			Int("port", ms.Port).
			Bool("tls", ms.UseTLS).
			Str("structure_source", ms.StructureSource).
			Msg("Configured miniserver")
	}

	return managers, sources
}
