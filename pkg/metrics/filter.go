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
	"path"
	"slices"
	"strings"

	"github.com/carverauto/loxone-exporter/pkg/models"
)

// Filter selects which controls are exported. Rooms and types match exactly;
// names match shell globs.
type Filter struct {
	ExcludeRooms      []string
	ExcludeTypes      []string
	ExcludeNames      []string
	IncludeTextValues bool
}

// Sample is one exported field value of one control.
type Sample struct {
	Miniserver string
	Name       string
	Room       string
	Category   string
	Type       string
	Field      string
	Number     float64
	Text       string
	IsText     bool
}

func (s Sample) labels() []string {
	return []string{s.Miniserver, s.Name, s.Room, s.Category, s.Type, s.Field}
}

func (s Sample) key() string {
	return strings.Join(s.labels()[1:], "\x00")
}

// Excludes reports whether the control is filtered out. Excluding a control
// also excludes its sub-controls.
func (f Filter) Excludes(e *models.Entity, st *models.Structure) bool {
	if e.RoomUUID != "" && slices.Contains(f.ExcludeRooms, st.RoomName(e.RoomUUID)) {
		return true
	}

	if slices.Contains(f.ExcludeTypes, e.Type) {
		return true
	}

	for _, pattern := range f.ExcludeNames {
		if ok, err := path.Match(pattern, e.Name); err == nil && ok {
			return true
		}
	}

	return false
}

// Samples walks a snapshot and returns the samples that survive the filter
// along with the number of exported controls. Samples that would repeat an
// earlier label set are dropped and counted in duplicates.
func (f Filter) Samples(snap *models.Snapshot) (samples []Sample, exported, duplicates int) {
	if snap == nil || snap.Structure == nil {
		return nil, 0, 0
	}

	w := &walker{
		filter: f,
		snap:   snap,
		seen:   make(map[string]struct{}),
	}

	for _, e := range snap.Structure.Entities {
		w.walk(e)
	}

	return w.samples, w.exported, w.duplicates
}

type walker struct {
	filter     Filter
	snap       *models.Snapshot
	seen       map[string]struct{}
	samples    []Sample
	exported   int
	duplicates int
}

func (w *walker) walk(e *models.Entity) {
	st := w.snap.Structure
	if w.filter.Excludes(e, st) {
		return
	}

	base := Sample{
		Miniserver: w.snap.Name,
		Name:       e.Name,
		Room:       st.RoomName(e.RoomUUID),
		Category:   st.CategoryName(e.CategoryUUID),
		Type:       e.Type,
	}

	if e.TextOnly {
		if !w.filter.IncludeTextValues {
			return
		}

		for _, name := range e.FieldNames() {
			if v, ok := w.snap.Values[e.Fields[name].UUID]; ok && v.Text != nil {
				w.add(base, name, v)
			}
		}

		w.exported++

		return
	}

	emitted := false

	for _, name := range e.FieldNames() {
		v, ok := w.snap.Values[e.Fields[name].UUID]
		if !ok {
			continue
		}

		if v.Number != nil || (v.Text != nil && w.filter.IncludeTextValues) {
			emitted = w.add(base, name, v) || emitted
		}
	}

	if emitted {
		w.exported++
	}

	for _, child := range e.Children {
		w.walk(child)
	}
}

func (w *walker) add(base Sample, field string, v models.Value) bool {
	s := base
	s.Field = field

	if v.Number != nil {
		s.Number = *v.Number
	} else {
		s.Text = *v.Text
		s.IsText = true
	}

	k := s.key()
	if s.IsText {
		k += "\x00text"
	}

	if _, dup := w.seen[k]; dup {
		w.duplicates++
		return false
	}

	w.seen[k] = struct{}{}
	w.samples = append(w.samples, s)

	return true
}
