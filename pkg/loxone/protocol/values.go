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

package protocol

import (
	"encoding/binary"
	"math"
	"strings"
)

const (
	// ValueRecordSize is the size of one value-state record.
	ValueRecordSize = GUIDSize + 8

	textRecordPrefix = GUIDSize + GUIDSize + 4
)

// NumericValue is one decoded value-state record.
type NumericValue struct {
	UUID  string
	Value float64
}

// TextValue is one decoded text-state record.
type TextValue struct {
	UUID string
	Icon string
	Text string
}

// ParseValueStates decodes a value-state payload.
func ParseValueStates(payload []byte) ([]NumericValue, error) {
	if rem := len(payload) % ValueRecordSize; rem != 0 {
		return nil, malformed(len(payload)-rem,
			"value-state payload length %d is not a multiple of %d", len(payload), ValueRecordSize)
	}

	out := make([]NumericValue, 0, len(payload)/ValueRecordSize)

	for off := 0; off < len(payload); off += ValueRecordSize {
		id, err := DecodeGUID(payload[off : off+GUIDSize])
		if err != nil {
			return nil, err
		}

		bits := binary.LittleEndian.Uint64(payload[off+GUIDSize : off+ValueRecordSize])
		out = append(out, NumericValue{UUID: id, Value: math.Float64frombits(bits)})
	}

	return out, nil
}

// ParseTextStates decodes a text-state payload. Records must consume the
// payload exactly, including the padding of the final record.
func ParseTextStates(payload []byte) ([]TextValue, error) {
	var out []TextValue

	off := 0
	for off < len(payload) {
		if len(payload)-off < textRecordPrefix {
			return nil, malformed(off, "truncated text-state record: %d bytes left, need %d",
				len(payload)-off, textRecordPrefix)
		}

		id, err := DecodeGUID(payload[off : off+GUIDSize])
		if err != nil {
			return nil, err
		}

		icon, err := DecodeGUID(payload[off+GUIDSize : off+2*GUIDSize])
		if err != nil {
			return nil, err
		}

		lenOff := off + 2*GUIDSize
		textLen := int64(binary.LittleEndian.Uint32(payload[lenOff : lenOff+4]))
		textOff := lenOff + 4
		remaining := int64(len(payload) - textOff)

		if textLen > remaining {
			return nil, malformed(lenOff, "text length %d exceeds remaining payload %d", textLen, remaining)
		}

		padded := textLen + (4-textLen%4)%4
		if padded > remaining {
			return nil, malformed(textOff+int(textLen), "missing padding after %d-byte text", textLen)
		}

		raw := payload[textOff : textOff+int(textLen)]
		out = append(out, TextValue{
			UUID: id,
			Icon: icon,
			Text: strings.ToValidUTF8(strings.TrimRight(string(raw), "\x00"), "\uFFFD"),
		})

		off = textOff + int(padded)
	}

	return out, nil
}

// EncodeValueStates produces a value-state payload.
func EncodeValueStates(values []NumericValue) ([]byte, error) {
	buf := make([]byte, 0, len(values)*ValueRecordSize)

	for _, v := range values {
		id, err := GUIDBytes(v.UUID)
		if err != nil {
			return nil, err
		}

		buf = append(buf, id...)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Value))
	}

	return buf, nil
}

// EncodeTextStates produces a text-state payload. Each text is written with a
// NUL terminator and padded to a 4-byte boundary. An empty Icon is encoded as
// the zero GUID.
func EncodeTextStates(values []TextValue) ([]byte, error) {
	var buf []byte

	zero := make([]byte, GUIDSize)

	for _, v := range values {
		id, err := GUIDBytes(v.UUID)
		if err != nil {
			return nil, err
		}

		icon := zero
		if v.Icon != "" {
			if icon, err = GUIDBytes(v.Icon); err != nil {
				return nil, err
			}
		}

		text := append([]byte(v.Text), 0)

		buf = append(buf, id...)
		buf = append(buf, icon...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(text)))
		buf = append(buf, text...)

		for len(text)%4 != 0 {
			text = append(text, 0)
			buf = append(buf, 0)
		}
	}

	return buf, nil
}
