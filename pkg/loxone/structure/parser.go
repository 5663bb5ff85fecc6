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

// Package structure parses the Miniserver structure file (LoxAPP3.json)
// into the entity graph and the reverse index used by the event decoder.
package structure

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/carverauto/loxone-exporter/pkg/logger"
	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
	"github.com/carverauto/loxone-exporter/pkg/models"
)

// MaxDepth bounds sub-control nesting.
const MaxDepth = 16

var textOnlyTypes = map[string]struct{}{
	"TextInput": {},
	"Webpage":   {},
	"TextState": {},
}

var textFieldNames = map[string]struct{}{
	"text":        {},
	"textAndIcon": {},
	"textColor":   {},
	"textInput":   {},
}

var digitalTypes = map[string]struct{}{
	"Switch":           {},
	"TimedSwitch":      {},
	"Pushbutton":       {},
	"InfoOnlyDigital":  {},
	"PresenceDetector": {},
	"SmokeAlarm":       {},
}

var digitalFieldNames = map[string]struct{}{
	"active": {},
	"value":  {},
}

type rawDocument struct {
	MsInfo          *rawMsInfo      `json:"msInfo"`
	SoftwareVersion json.RawMessage `json:"softwareVersion"`
	Rooms           json.RawMessage `json:"rooms"`
	Cats            json.RawMessage `json:"cats"`
	Controls        json.RawMessage `json:"controls"`
}

type rawMsInfo struct {
	SerialNr string `json:"serialNr"`
	MsName   string `json:"msName"`
}

type rawNamed struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type rawControl struct {
	Name        string          `json:"name"`
	Type        *string         `json:"type"`
	Room        string          `json:"room"`
	Cat         string          `json:"cat"`
	States      json.RawMessage `json:"states"`
	SubControls json.RawMessage `json:"subControls"`
}

type parser struct {
	log   logger.Logger
	index models.ReverseIndex
	seen  map[string]struct{}
}

// Parse builds a Structure from a raw structure document. Either the whole
// document is accepted or a *MalformedStructureError is returned. Entries
// that cannot be mapped, such as states with non-GUID identifiers, are
// skipped rather than failing the document.
func Parse(raw []byte) (*models.Structure, error) {
	return ParseWithLogger(raw, logger.Nop())
}

// ParseWithLogger is Parse with data-quality warnings reported to log.
func ParseWithLogger(raw []byte, log logger.Logger) (*models.Structure, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, malformed("", "document is not a JSON object")
	}

	var doc rawDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &MalformedStructureError{Reason: "invalid JSON", Err: err}
	}

	rooms, err := parseRooms(doc.Rooms)
	if err != nil {
		return nil, err
	}

	cats, err := parseCategories(doc.Cats)
	if err != nil {
		return nil, err
	}

	if isAbsent(doc.Controls) {
		return nil, malformed("controls", "required key missing")
	}

	controls, err := objectMembers("controls", doc.Controls)
	if err != nil {
		return nil, err
	}

	p := &parser{
		log:   log,
		index: make(models.ReverseIndex),
		seen:  make(map[string]struct{}),
	}

	entities := make([]*models.Entity, 0, len(controls))

	for _, key := range sortedKeys(controls) {
		e, err := p.parseControl("controls."+key, key, controls[key], nil, nil)
		if err != nil {
			return nil, err
		}

		entities = append(entities, e)
	}

	sortEntities(entities)

	s := models.NewStructure(entities, rooms, cats, p.index)

	if doc.MsInfo != nil {
		s.Serial = doc.MsInfo.SerialNr
	}

	s.Firmware = firmwareVersion(doc.SoftwareVersion)

	return s, nil
}

func (p *parser) parseControl(path, key string, raw json.RawMessage, parent *models.Entity, ancestors []string) (*models.Entity, error) {
	if len(ancestors) >= MaxDepth {
		return nil, malformed(path, "sub-control nesting exceeds depth %d", MaxDepth)
	}

	id, err := protocol.CanonicalGUID(key)
	if err != nil {
		// Suffixed sub-control keys such as "<uuid>/timer" are kept as written.
		p.log.Warn().Err(err).Str("path", path).Str("key", key).
			Msg("Control key is not a GUID, using it verbatim")

		id = key
	}

	for _, a := range ancestors {
		if a == id {
			return nil, malformed(path, "circular sub-control reference to %s", id)
		}
	}

	if _, dup := p.seen[id]; dup {
		return nil, malformed(path, "identifier %s is used by more than one control", id)
	}

	p.seen[id] = struct{}{}

	var rc rawControl
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, &MalformedStructureError{Path: path, Reason: "control is not an object", Err: err}
	}

	if rc.Type == nil {
		return nil, malformed(path, "control has no type")
	}

	e := &models.Entity{
		UUID:   id,
		Name:   rc.Name,
		Type:   *rc.Type,
		Fields: make(map[string]*models.Field),
	}

	if e.RoomUUID, err = optionalGUID(path+".room", rc.Room); err != nil {
		return nil, err
	}

	if e.CategoryUUID, err = optionalGUID(path+".cat", rc.Cat); err != nil {
		return nil, err
	}

	if parent != nil {
		if e.RoomUUID == "" {
			e.RoomUUID = parent.RoomUUID
		}

		if e.CategoryUUID == "" {
			e.CategoryUUID = parent.CategoryUUID
		}
	}

	if err := p.parseStates(path+".states", rc.States, e); err != nil {
		return nil, err
	}

	e.TextOnly = isTextOnly(e)

	subs, err := objectMembers(path+".subControls", rc.SubControls)
	if err != nil {
		return nil, err
	}

	lineage := append(append([]string(nil), ancestors...), id)

	for _, subKey := range sortedKeys(subs) {
		child, err := p.parseControl(path+".subControls."+subKey, subKey, subs[subKey], e, lineage)
		if err != nil {
			return nil, err
		}

		e.Children = append(e.Children, child)
	}

	sortEntities(e.Children)

	return e, nil
}

func (p *parser) parseStates(path string, raw json.RawMessage, e *models.Entity) error {
	states, err := objectMembers(path, raw)
	if err != nil {
		return err
	}

	_, textType := textOnlyTypes[e.Type]
	_, digitalType := digitalTypes[e.Type]

	for _, name := range sortedKeys(states) {
		var wire string
		if err := json.Unmarshal(states[name], &wire); err != nil {
			p.log.Warn().Str("path", path+"."+name).Str("entity", e.UUID).
				Msg("Skipping state whose identifier is not a string")

			continue
		}

		wireID, err := protocol.CanonicalGUID(wire)
		if err != nil {
			p.log.Warn().Err(err).Str("path", path+"."+name).Str("entity", e.UUID).
				Msg("Skipping state with an invalid identifier")

			continue
		}

		_, textField := textFieldNames[name]
		_, digitalField := digitalFieldNames[name]

		e.Fields[name] = &models.Field{
			UUID:     wireID,
			Name:     name,
			TextOnly: textType || textField,
			Digital:  digitalType && digitalField,
		}

		if prev, dup := p.index[wireID]; dup {
			p.log.Warn().
				Str("wire_id", wireID).
				Str("previous_entity", prev.EntityUUID).
				Str("previous_field", prev.FieldName).
				Str("entity", e.UUID).
				Str("field", name).
				Msg("Duplicate state identifier in structure, keeping the last mapping")
		}

		p.index[wireID] = models.FieldRef{EntityUUID: e.UUID, FieldName: name}
	}

	return nil
}

// isTextOnly marks controls whose type is inherently textual, or whose every
// field carries text.
func isTextOnly(e *models.Entity) bool {
	if _, ok := textOnlyTypes[e.Type]; ok {
		return true
	}

	if len(e.Fields) == 0 {
		return false
	}

	for name := range e.Fields {
		if _, ok := textFieldNames[name]; !ok {
			return false
		}
	}

	return true
}

func parseRooms(raw json.RawMessage) (map[string]models.Room, error) {
	members, err := objectMembers("rooms", raw)
	if err != nil {
		return nil, err
	}

	rooms := make(map[string]models.Room, len(members))

	for key, body := range members {
		id, named, err := parseNamed("rooms."+key, key, body)
		if err != nil {
			return nil, err
		}

		rooms[id] = models.Room{UUID: id, Name: named.Name}
	}

	return rooms, nil
}

func parseCategories(raw json.RawMessage) (map[string]models.Category, error) {
	members, err := objectMembers("cats", raw)
	if err != nil {
		return nil, err
	}

	cats := make(map[string]models.Category, len(members))

	for key, body := range members {
		id, named, err := parseNamed("cats."+key, key, body)
		if err != nil {
			return nil, err
		}

		cats[id] = models.Category{UUID: id, Name: named.Name, Type: named.Type}
	}

	return cats, nil
}

func parseNamed(path, key string, body json.RawMessage) (string, rawNamed, error) {
	id, err := protocol.CanonicalGUID(key)
	if err != nil {
		return "", rawNamed{}, &MalformedStructureError{Path: path, Reason: "invalid identifier", Err: err}
	}

	var named rawNamed
	if err := json.Unmarshal(body, &named); err != nil {
		return "", rawNamed{}, &MalformedStructureError{Path: path, Reason: "entry is not an object", Err: err}
	}

	return id, named, nil
}

// objectMembers decodes an optional JSON object. Absent or null yields an
// empty map; any other non-object value is malformed.
func objectMembers(path string, raw json.RawMessage) (map[string]json.RawMessage, error) {
	if isAbsent(raw) {
		return map[string]json.RawMessage{}, nil
	}

	if raw[0] != '{' {
		return nil, malformed(path, "expected an object")
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, &MalformedStructureError{Path: path, Reason: "expected an object", Err: err}
	}

	return members, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func optionalGUID(path, value string) (string, error) {
	if value == "" {
		return "", nil
	}

	id, err := protocol.CanonicalGUID(value)
	if err != nil {
		return "", &MalformedStructureError{Path: path, Reason: "invalid reference", Err: err}
	}

	return id, nil
}

// firmwareVersion accepts either "14.5.12.28" or [14,5,12,28].
func firmwareVersion(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []json.Number
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := make([]string, len(parts))
		for i, part := range parts {
			out[i] = part.String()
		}

		return strings.Join(out, ".")
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return string(bytes.TrimSpace(raw))
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func sortEntities(entities []*models.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].UUID < entities[j].UUID
	})
}
