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

// Package client drives one Miniserver connection through its lifecycle:
// dial, login, structure discovery, subscription and the event loop, with
// exponential backoff between attempts.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/loxone/auth"
	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
	"github.com/carverauto/loxone-exporter/pkg/loxone/structure"
	"github.com/carverauto/loxone-exporter/pkg/models"
	"github.com/carverauto/loxone-exporter/pkg/state"
)

const (
	cmdStructure = "data/LoxAPP3.json"
	cmdSubscribe = "jdev/sps/enablebinstatusupdate"
	cmdKeepalive = "keepalive"
)

var (
	errNoStructureFetcher = errors.New("structure source is http but no fetcher is configured")
	errSubscribeRefused   = errors.New("subscription refused")
	errOutOfService       = errors.New("miniserver is out of service")
)

// Manager owns one Miniserver connection. Run drives it until the context is
// cancelled; the Store holds everything readers may observe.
type Manager struct {
	opts       Options
	dialer     Dialer
	auth       Authenticator
	structures StructureFetcher
	store      *state.Store
	logger     logger.Logger

	unknownWarn *rate.Limiter

	phase    models.Phase
	failures int
	retry    *backoff.ExponentialBackOff
	delay    time.Duration
	conn     Conn
	cred     *auth.Credential

	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	onTransition func(from, to models.Phase, failures int)
}

// NewManager creates a Manager. structures may be nil when the structure is
// downloaded over the WebSocket.
func NewManager(
	opts Options,
	dialer Dialer,
	authenticator Authenticator,
	structures StructureFetcher,
	store *state.Store,
	log logger.Logger,
) *Manager {
	opts.applyDefaults()

	return &Manager{
		opts:        opts,
		dialer:      dialer,
		auth:        authenticator,
		structures:  structures,
		store:       store,
		logger:      log,
		unknownWarn: rate.NewLimiter(rate.Every(unknownWarnInterval), 1),
		retry:       newBackOff(2*opts.BaseBackoff, opts.MaxBackoff),
		phase:       models.PhaseDisconnected,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// Run drives the connection until ctx is cancelled. It returns nil on
// shutdown; any other error means the phase machine reached an impossible
// transition.
func (m *Manager) Run(ctx context.Context) error {
	defer m.shutdown()

	m.logger.Info().Str("miniserver", m.opts.Name).Msg("Starting connection manager")

	next := models.PhaseConnecting

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := m.transition(next); err != nil {
			return err
		}

		next = m.step(ctx)
	}
}

func (m *Manager) step(ctx context.Context) models.Phase {
	switch m.phase {
	case models.PhaseConnecting:
		return m.connect(ctx)
	case models.PhaseAuthenticating:
		return m.authenticate(ctx)
	case models.PhaseDiscovering:
		return m.discover(ctx)
	case models.PhaseSubscribing:
		return m.subscribe(ctx)
	case models.PhaseConnected:
		return m.serve(ctx)
	case models.PhaseBackoff:
		return m.backoff(ctx)
	case models.PhaseDisconnected:
		return models.PhaseConnecting
	}

	return models.PhaseBackoff
}

// transition moves to the next phase and runs its entry actions. Entering
// CONNECTED resets the failure counter and the schedule; entering BACKOFF
// closes the channel, counts the failure and takes the next delay, which is
// base*2 after the first failure.
func (m *Manager) transition(to models.Phase) error {
	from := m.phase
	if err := checkTransition(from, to); err != nil {
		return err
	}

	m.phase = to

	switch to {
	case models.PhaseConnected:
		m.failures = 0
		m.delay = 0
		m.retry.Reset()
		m.store.SetBackoff(0, 0)
	case models.PhaseBackoff:
		m.closeConn()
		m.failures++
		m.delay = m.retry.NextBackOff()
		m.store.SetBackoff(m.failures, m.delay)
	case models.PhaseDisconnected:
		m.closeConn()
	case models.PhaseConnecting, models.PhaseAuthenticating, models.PhaseDiscovering, models.PhaseSubscribing:
	}

	m.store.SetPhase(to)

	m.logger.Debug().
		Str("miniserver", m.opts.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Int("consecutive_failures", m.failures).
		Msg("Phase transition")

	if m.onTransition != nil {
		m.onTransition(from, to, m.failures)
	}

	return nil
}

func (m *Manager) shutdown() {
	if m.phase == models.PhaseDisconnected && m.conn == nil {
		return
	}

	from := m.phase

	m.closeConn()
	m.phase = models.PhaseDisconnected
	m.store.SetPhase(models.PhaseDisconnected)

	if m.onTransition != nil {
		m.onTransition(from, models.PhaseDisconnected, m.failures)
	}

	m.logger.Info().Str("miniserver", m.opts.Name).Msg("Connection manager stopped")
}

func (m *Manager) closeConn() {
	if m.conn == nil {
		return
	}

	if err := m.conn.Close(); err != nil {
		m.logger.Debug().Err(err).Str("miniserver", m.opts.Name).Msg("Error closing channel")
	}

	m.conn = nil
}

func (m *Manager) connect(ctx context.Context) models.Phase {
	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Failed to connect")

		return models.PhaseBackoff
	}

	m.conn = conn

	return models.PhaseAuthenticating
}

func (m *Manager) authenticate(ctx context.Context) models.Phase {
	actx, cancel := context.WithTimeout(ctx, m.opts.AuthTimeout)
	defer cancel()

	cred, err := m.auth.Authenticate(actx, m.conn, m.opts.Username, m.opts.Password)
	if err != nil {
		if errors.Is(err, auth.ErrRejected) {
			m.logger.Error().Err(err).
				Str("miniserver", m.opts.Name).
				Str("username", m.opts.Username).
				Msg("Miniserver rejected the credentials")
		} else {
			m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Authentication failed")
		}

		return models.PhaseBackoff
	}

	m.cred = cred

	return models.PhaseDiscovering
}

func (m *Manager) discover(ctx context.Context) models.Phase {
	dctx, cancel := context.WithTimeout(ctx, m.opts.DiscoverTimeout)
	defer cancel()

	raw, err := m.fetchStructure(dctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Failed to download structure")

		return models.PhaseBackoff
	}

	s, err := structure.ParseWithLogger(raw, logger.Wrap(m.logger.With().Str("miniserver", m.opts.Name).Logger()))
	if err != nil {
		m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Failed to parse structure")

		return models.PhaseBackoff
	}

	m.store.InstallStructure(s)

	m.logger.Info().
		Str("miniserver", m.opts.Name).
		Str("serial", s.Serial).
		Str("firmware", s.Firmware).
		Int("controls", s.EntityCount()).
		Int("states", len(s.Index)).
		Msg("Structure installed")

	return models.PhaseSubscribing
}

func (m *Manager) fetchStructure(ctx context.Context) ([]byte, error) {
	if m.opts.StructureSource == StructureFromHTTP {
		if m.structures == nil {
			return nil, errNoStructureFetcher
		}

		return m.structures.Structure(ctx)
	}

	if err := m.conn.Send(ctx, cmdStructure); err != nil {
		return nil, err
	}

	text, err := m.conn.ReceiveText(ctx)
	if err != nil {
		return nil, err
	}

	return []byte(text), nil
}

// subscribe enables binary status updates and waits for the first sign that
// they are flowing: a successful reply or an event batch.
func (m *Manager) subscribe(ctx context.Context) models.Phase {
	sctx, cancel := context.WithTimeout(ctx, m.opts.SubscribeTimeout)
	defer cancel()

	if err := m.awaitSubscription(sctx); err != nil {
		m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Failed to subscribe to status updates")

		return models.PhaseBackoff
	}

	return models.PhaseConnected
}

func (m *Manager) awaitSubscription(ctx context.Context) error {
	if err := m.conn.Send(ctx, cmdSubscribe); err != nil {
		return err
	}

	for {
		f, err := m.conn.ReadFrame(ctx)
		if err != nil {
			return err
		}

		switch f.Header.Type {
		case protocol.TypeText:
			r, err := auth.ParseReply(string(f.Payload))
			if err != nil {
				m.logger.Debug().Err(err).Msg("Ignoring undecodable reply while subscribing")

				continue
			}

			if !r.OK() {
				return fmt.Errorf("%w: code %s", errSubscribeRefused, r.Code)
			}

			return nil
		case protocol.TypeValueStates, protocol.TypeTextStates:
			return m.applyFrame(f)
		case protocol.TypeOutOfService:
			return errOutOfService
		case protocol.TypeBinaryFile, protocol.TypeDaytimerStates, protocol.TypeKeepalive, protocol.TypeWeatherStates:
		default:
		}
	}
}

func (m *Manager) backoff(ctx context.Context) models.Phase {
	delay := m.delay

	m.logger.Info().
		Str("miniserver", m.opts.Name).
		Int("consecutive_failures", m.failures).
		Dur("delay", delay).
		Msg("Reconnecting after backoff")

	if err := m.sleep(ctx, delay); err != nil {
		return models.PhaseDisconnected
	}

	return models.PhaseConnecting
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
