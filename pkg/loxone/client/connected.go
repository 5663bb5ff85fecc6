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

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/loxone/auth"
	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
	"github.com/carverauto/loxone-exporter/pkg/loxone/transport"
	"github.com/carverauto/loxone-exporter/pkg/models"
	"github.com/carverauto/loxone-exporter/pkg/state"
)

var errWatchdog = errors.New("keepalive not acknowledged")

type readResult struct {
	frame transport.Frame
	err   error
}

type refreshResult struct {
	cred *auth.Credential
	err  error
}

// session is the state of one CONNECTED period.
type session struct {
	pending   []time.Time // keepalives awaiting acknowledgement, oldest first
	watchdog  *time.Timer
	refresh   *time.Timer
	replies   chan string
	refreshed chan refreshResult
	inFlight  bool
	wg        *sync.WaitGroup
}

// serve runs the event loop until the connection fails or ctx ends. The
// channel is closed and the reader joined before it returns.
func (m *Manager) serve(ctx context.Context) models.Phase {
	m.logger.Info().Str("miniserver", m.opts.Name).Msg("Connected, receiving status updates")

	conn := m.conn

	sctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup

	frames := make(chan readResult)

	wg.Add(1)

	go func() {
		defer wg.Done()
		m.readLoop(sctx, conn, frames)
	}()

	defer func() {
		cancel()
		m.closeConn()
		wg.Wait()
	}()

	s := &session{
		watchdog:  time.NewTimer(m.opts.WatchdogTimeout),
		refresh:   time.NewTimer(time.Hour),
		replies:   make(chan string, 1),
		refreshed: make(chan refreshResult, 1),
		wg:        &wg,
	}
	s.watchdog.Stop()
	s.refresh.Stop()

	defer s.watchdog.Stop()
	defer s.refresh.Stop()

	m.scheduleRefresh(s)

	keepalive := time.NewTicker(m.opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.PhaseDisconnected

		case r := <-frames:
			if r.err != nil {
				m.logger.Warn().Err(r.err).Str("miniserver", m.opts.Name).Msg("Connection lost")

				return models.PhaseBackoff
			}

			if err := m.dispatch(s, r.frame); err != nil {
				m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Leaving connected state")

				return models.PhaseBackoff
			}

		case <-keepalive.C:
			if err := m.sendKeepalive(sctx, conn, s); err != nil {
				m.logger.Warn().Err(err).Str("miniserver", m.opts.Name).Msg("Failed to send keepalive")

				return models.PhaseBackoff
			}

		case <-s.watchdog.C:
			m.logger.Warn().
				Err(errWatchdog).
				Str("miniserver", m.opts.Name).
				Int("outstanding", len(s.pending)).
				Msg("Keepalive watchdog expired")

			return models.PhaseBackoff

		case <-s.refresh.C:
			m.startRefresh(sctx, conn, s)

		case r := <-s.refreshed:
			s.inFlight = false

			if r.err != nil {
				m.logger.Warn().Err(r.err).Str("miniserver", m.opts.Name).Msg("Token refresh failed")

				return models.PhaseBackoff
			}

			m.cred = r.cred

			m.logger.Info().
				Str("miniserver", m.opts.Name).
				Time("valid_until", r.cred.ValidUntil).
				Msg("Token refreshed")

			m.scheduleRefresh(s)
		}
	}
}

// readLoop forwards frames until the read fails or ctx ends. Closing the
// channel unblocks a pending read.
func (m *Manager) readLoop(ctx context.Context, conn Conn, out chan<- readResult) {
	for {
		f, err := conn.ReadFrame(ctx)

		select {
		case out <- readResult{frame: f, err: err}:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

// dispatch handles one inbound frame. A returned error ends the connection.
func (m *Manager) dispatch(s *session, f transport.Frame) error {
	switch f.Header.Type {
	case protocol.TypeText:
		m.routeText(s, string(f.Payload))
	case protocol.TypeBinaryFile:
		m.logger.Debug().Int("bytes", len(f.Payload)).Msg("Discarding unsolicited file")
	case protocol.TypeValueStates, protocol.TypeTextStates:
		return m.applyFrame(f)
	case protocol.TypeDaytimerStates, protocol.TypeWeatherStates:
		m.logger.Trace().Str("type", f.Header.Type.String()).Msg("Ignoring event batch")
	case protocol.TypeOutOfService:
		return errOutOfService
	case protocol.TypeKeepalive:
		m.ackKeepalive(s)
	default:
		m.logger.Warn().
			Str("miniserver", m.opts.Name).
			Uint8("type", uint8(f.Header.Type)).
			Uint32("length", f.Header.Length).
			Msg("Discarding frame with unknown message type")
	}

	return nil
}

// routeText hands a text reply to an in-flight token refresh. Other replies
// are logged and dropped.
func (m *Manager) routeText(s *session, text string) {
	if !s.inFlight {
		m.logger.Debug().Str("reply", truncate(text, 120)).Msg("Discarding unsolicited reply")

		return
	}

	select {
	case s.replies <- text:
	default:
		m.logger.Debug().Str("reply", truncate(text, 120)).Msg("Refresh is not waiting for a reply, discarding")
	}
}

// applyFrame decodes an event batch and applies it to the store.
func (m *Manager) applyFrame(f transport.Frame) error {
	var res state.ApplyResult

	switch f.Header.Type {
	case protocol.TypeValueStates:
		values, err := protocol.ParseValueStates(f.Payload)
		if err != nil {
			return err
		}

		res = m.store.ApplyNumeric(values)
	case protocol.TypeTextStates:
		values, err := protocol.ParseTextStates(f.Payload)
		if err != nil {
			return err
		}

		res = m.store.ApplyText(values)
	default:
		return nil
	}

	if res.Unknown > 0 && m.unknownWarn.Allow() {
		m.logger.Warn().
			Str("miniserver", m.opts.Name).
			Int("unknown", res.Unknown).
			Strs("sample", sample(res.UnknownIDs, 5)).
			Msg("Dropping updates for unknown state identifiers")
	}

	if res.Mismatched > 0 {
		m.logger.Debug().
			Str("miniserver", m.opts.Name).
			Int("mismatched", res.Mismatched).
			Str("type", f.Header.Type.String()).
			Msg("Dropping updates that do not match the field kind")
	}

	return nil
}

func (m *Manager) sendKeepalive(ctx context.Context, conn Conn, s *session) error {
	if err := conn.Send(ctx, cmdKeepalive); err != nil {
		return err
	}

	s.pending = append(s.pending, m.now())
	if len(s.pending) == 1 {
		s.watchdog.Reset(m.opts.WatchdogTimeout)
	}

	return nil
}

// ackKeepalive retires the oldest outstanding keepalive and rearms the
// watchdog for the next one, if any.
func (m *Manager) ackKeepalive(s *session) {
	if len(s.pending) == 0 {
		return
	}

	s.pending = s.pending[1:]
	s.watchdog.Stop()

	if len(s.pending) > 0 {
		remaining := s.pending[0].Add(m.opts.WatchdogTimeout).Sub(m.now())
		if remaining < 0 {
			remaining = 0
		}

		s.watchdog.Reset(remaining)
	}
}

func (m *Manager) scheduleRefresh(s *session) {
	at := m.cred.RefreshAt()
	if at.IsZero() {
		return
	}

	delay := at.Sub(m.now())
	if delay < 0 {
		delay = 0
	}

	s.refresh.Reset(delay)

	m.logger.Debug().Str("miniserver", m.opts.Name).Time("refresh_at", at).Msg("Token refresh scheduled")
}

func (m *Manager) startRefresh(ctx context.Context, conn Conn, s *session) {
	if s.inFlight {
		return
	}

	s.inFlight = true
	cred := m.cred
	rc := &routedConn{conn: conn, replies: s.replies}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		rctx, cancel := context.WithTimeout(ctx, m.opts.RefreshTimeout)
		defer cancel()

		next, err := m.auth.Refresh(rctx, rc, cred)
		s.refreshed <- refreshResult{cred: next, err: err}
	}()
}

func sample(ids []string, n int) []string {
	if len(ids) <= n {
		return ids
	}

	return ids[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
