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

// Package models holds the shared data types of the exporter: the discovered
// Miniserver object graph and the per-controller connection snapshot.
package models

import "sort"

// Room is a flat lookup entry from the structure file.
type Room struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Category is a flat lookup entry from the structure file.
type Category struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Field is one observable value slot on an Entity. UUID is the wire
// identifier the Miniserver uses to tag the value in event frames.
type Field struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	TextOnly bool   `json:"text_only"`
	Digital  bool   `json:"digital"`
}

// Entity is a discovered control. Children are sub-controls; each keeps its
// own UUID and field namespace.
type Entity struct {
	UUID         string            `json:"uuid"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	RoomUUID     string            `json:"room,omitempty"`
	CategoryUUID string            `json:"category,omitempty"`
	TextOnly     bool              `json:"text_only"`
	Fields       map[string]*Field `json:"fields"`
	Children     []*Entity         `json:"children,omitempty"`
}

// FieldNames returns the entity's field names in sorted order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// FieldRef points from a wire identifier back to its owner.
type FieldRef struct {
	EntityUUID string `json:"entity"`
	FieldName  string `json:"field"`
}

// ReverseIndex maps wire identifiers to their owning entity and field.
type ReverseIndex map[string]FieldRef

// Structure is the parsed structure file of one Miniserver. It is never
// mutated after the parser returns it.
type Structure struct {
	Serial     string              `json:"serial"`
	Firmware   string              `json:"firmware"`
	Entities   []*Entity           `json:"entities"`
	Rooms      map[string]Room     `json:"rooms"`
	Categories map[string]Category `json:"categories"`
	Index      ReverseIndex        `json:"index"`

	byUUID map[string]*Entity
}

// NewStructure assembles a Structure and builds the flattened entity lookup.
func NewStructure(entities []*Entity, rooms map[string]Room, cats map[string]Category, index ReverseIndex) *Structure {
	s := &Structure{
		Entities:   entities,
		Rooms:      rooms,
		Categories: cats,
		Index:      index,
		byUUID:     make(map[string]*Entity),
	}

	var walk func([]*Entity)
	walk = func(list []*Entity) {
		for _, e := range list {
			s.byUUID[e.UUID] = e
			walk(e.Children)
		}
	}
	walk(entities)

	return s
}

// Entity returns the entity (top-level or nested) with the given UUID.
func (s *Structure) Entity(uuid string) (*Entity, bool) {
	if s == nil {
		return nil, false
	}

	e, ok := s.byUUID[uuid]

	return e, ok
}

// Field resolves a wire identifier to its entity and field.
func (s *Structure) Field(wireID string) (*Entity, *Field, bool) {
	if s == nil {
		return nil, nil, false
	}

	ref, ok := s.Index[wireID]
	if !ok {
		return nil, nil, false
	}

	e, ok := s.byUUID[ref.EntityUUID]
	if !ok {
		return nil, nil, false
	}

	f, ok := e.Fields[ref.FieldName]

	return e, f, ok
}

// EntityCount counts every entity including nested children.
func (s *Structure) EntityCount() int {
	if s == nil {
		return 0
	}

	return len(s.byUUID)
}

// RoomName returns the display name of a room, or "" when unknown.
func (s *Structure) RoomName(uuid string) string {
	if s == nil || uuid == "" {
		return ""
	}

	return s.Rooms[uuid].Name
}

// CategoryName returns the display name of a category, or "" when unknown.
func (s *Structure) CategoryName(uuid string) string {
	if s == nil || uuid == "" {
		return ""
	}

	return s.Categories[uuid].Name
}
