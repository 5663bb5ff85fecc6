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

// Package state holds the per-Miniserver connection state shared between the
// connection manager and its readers. Readers get an immutable snapshot
// without locking; every write publishes a fresh snapshot.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
	"github.com/carverauto/loxone-exporter/pkg/models"
)

// ApplyResult summarises one applied batch.
type ApplyResult struct {
	Applied    int
	Unknown    int
	Mismatched int
	UnknownIDs []string
}

// Store is the shared state of one Miniserver connection.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[models.Snapshot]
	now func() time.Time
}

// NewStore creates a store in the disconnected phase.
func NewStore(name string) *Store {
	s := &Store{now: time.Now}
	s.cur.Store(&models.Snapshot{
		Name:   name,
		Phase:  models.PhaseDisconnected,
		Values: map[string]models.Value{},
	})

	return s
}

// Snapshot returns the latest published snapshot. It never blocks.
func (s *Store) Snapshot() *models.Snapshot {
	return s.cur.Load()
}

// update copies the current snapshot, lets fn modify the copy and publishes
// it. The Values map is shared with the previous snapshot unless fn replaces
// it.
func (s *Store) update(fn func(next *models.Snapshot)) *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	fn(&next)
	s.cur.Store(&next)

	return &next
}

// SetPhase publishes a phase change. The connected flag follows the phase.
func (s *Store) SetPhase(phase models.Phase) {
	s.update(func(next *models.Snapshot) {
		next.Phase = phase
		next.Connected = phase == models.PhaseConnected
	})
}

// SetBackoff publishes the failure counter and the current backoff delay.
func (s *Store) SetBackoff(failures int, delay time.Duration) {
	s.update(func(next *models.Snapshot) {
		next.ConsecutiveFailures = failures
		next.Backoff = delay
	})
}

// InstallStructure replaces the entity graph and reverse index as a unit.
// Values whose wire identifier is absent from the new index are dropped.
func (s *Store) InstallStructure(structure *models.Structure) {
	s.update(func(next *models.Snapshot) {
		values := make(map[string]models.Value, len(next.Values))

		for id, v := range next.Values {
			if _, ok := structure.Index[id]; ok {
				values[id] = v
			}
		}

		next.Structure = structure
		next.Serial = structure.Serial
		next.Firmware = structure.Firmware
		next.Values = values
	})
}

// ApplyNumeric applies a decoded value-state batch. Identifiers missing from
// the reverse index and updates aimed at text-only fields are dropped.
func (s *Store) ApplyNumeric(batch []protocol.NumericValue) ApplyResult {
	var res ApplyResult

	s.update(func(next *models.Snapshot) {
		now := s.now()
		values := cloneValues(next.Values, len(batch))

		for _, nv := range batch {
			_, field, ok := next.Structure.Field(nv.UUID)
			if !ok {
				res.Unknown++
				res.UnknownIDs = append(res.UnknownIDs, nv.UUID)

				continue
			}

			if field.TextOnly {
				res.Mismatched++

				continue
			}

			v := nv.Value
			values[nv.UUID] = models.Value{Number: &v, Updated: now}
			res.Applied++
		}

		if res.Applied > 0 {
			next.Values = values
			next.LastUpdate = now
		}
	})

	return res
}

// ApplyText applies a decoded text-state batch. Only text-only fields accept
// text updates.
func (s *Store) ApplyText(batch []protocol.TextValue) ApplyResult {
	var res ApplyResult

	s.update(func(next *models.Snapshot) {
		now := s.now()
		values := cloneValues(next.Values, len(batch))

		for _, tv := range batch {
			_, field, ok := next.Structure.Field(tv.UUID)
			if !ok {
				res.Unknown++
				res.UnknownIDs = append(res.UnknownIDs, tv.UUID)

				continue
			}

			if !field.TextOnly {
				res.Mismatched++

				continue
			}

			text := tv.Text
			values[tv.UUID] = models.Value{Text: &text, Updated: now}
			res.Applied++
		}

		if res.Applied > 0 {
			next.Values = values
			next.LastUpdate = now
		}
	})

	return res
}

func cloneValues(in map[string]models.Value, extra int) map[string]models.Value {
	out := make(map[string]models.Value, len(in)+extra)
	for k, v := range in {
		out[k] = v
	}

	return out
}
