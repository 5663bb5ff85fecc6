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

package models

import "time"

// Phase is the connection lifecycle phase of one Miniserver connection.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAuthenticating
	PhaseDiscovering
	PhaseSubscribing
	PhaseConnected
	PhaseBackoff
)

var phaseNames = map[Phase]string{
	PhaseDisconnected:   "disconnected",
	PhaseConnecting:     "connecting",
	PhaseAuthenticating: "authenticating",
	PhaseDiscovering:    "discovering",
	PhaseSubscribing:    "subscribing",
	PhaseConnected:      "connected",
	PhaseBackoff:        "backoff",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}

	return "unknown"
}

// Value is the last known value of one field. Exactly one of Number and Text
// is set for a field that has received an update.
type Value struct {
	Number  *float64  `json:"number,omitempty"`
	Text    *string   `json:"text,omitempty"`
	Updated time.Time `json:"updated"`
}

// Snapshot is the published state of one Miniserver connection. A Snapshot
// is immutable once stored; writers always publish a fresh copy.
type Snapshot struct {
	Name                string           `json:"name"`
	Serial              string           `json:"serial"`
	Firmware            string           `json:"firmware"`
	Phase               Phase            `json:"phase"`
	Connected           bool             `json:"connected"`
	LastUpdate          time.Time        `json:"last_update"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Backoff             time.Duration    `json:"backoff"`
	Structure           *Structure       `json:"structure,omitempty"`
	Values              map[string]Value `json:"values"`
}

// FieldValue returns the last value of a field addressed by entity UUID and
// field name.
func (s *Snapshot) FieldValue(entityUUID, fieldName string) (Value, bool) {
	if s == nil || s.Structure == nil {
		return Value{}, false
	}

	e, ok := s.Structure.Entity(entityUUID)
	if !ok {
		return Value{}, false
	}

	f, ok := e.Fields[fieldName]
	if !ok {
		return Value{}, false
	}

	v, ok := s.Values[f.UUID]

	return v, ok
}

// Number returns the numeric value of a field if one has been received.
func (s *Snapshot) Number(entityUUID, fieldName string) (float64, bool) {
	v, ok := s.FieldValue(entityUUID, fieldName)
	if !ok || v.Number == nil {
		return 0, false
	}

	return *v.Number, true
}

// Text returns the text value of a field if one has been received.
func (s *Snapshot) Text(entityUUID, fieldName string) (string, bool) {
	v, ok := s.FieldValue(entityUUID, fieldName)
	if !ok || v.Text == nil {
		return "", false
	}

	return *v.Text, true
}

// EntityCount returns the number of discovered entities including children.
func (s *Snapshot) EntityCount() int {
	if s == nil {
		return 0
	}

	return s.Structure.EntityCount()
}
