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

// Package protocol decodes the Miniserver binary WebSocket protocol: the
// 8-byte message header and the value-state and text-state event payloads.
//
// Every decoder is a pure function over a byte slice. Truncated or misaligned
// input yields a *MalformedFrameError naming the offset; decoders never panic
// and never read past the slice.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a message header.
const HeaderSize = 8

// HeaderMarker is the first byte of every header.
const HeaderMarker byte = 0x03

const flagEstimated byte = 0x01

// MessageType identifies the payload that follows a header.
type MessageType uint8

const (
	TypeText           MessageType = 0
	TypeBinaryFile     MessageType = 1
	TypeValueStates    MessageType = 2
	TypeTextStates     MessageType = 3
	TypeDaytimerStates MessageType = 4
	TypeOutOfService   MessageType = 5
	TypeKeepalive      MessageType = 6
	TypeWeatherStates  MessageType = 7
)

func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeBinaryFile:
		return "binary-file"
	case TypeValueStates:
		return "value-states"
	case TypeTextStates:
		return "text-states"
	case TypeDaytimerStates:
		return "daytimer-states"
	case TypeOutOfService:
		return "out-of-service"
	case TypeKeepalive:
		return "keepalive"
	case TypeWeatherStates:
		return "weather-states"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Known reports whether t is one of the eight documented message types.
func (t MessageType) Known() bool {
	return t <= TypeWeatherStates
}

// HasPayload reports whether a header of this type is followed by a payload.
// Out-of-service notices and keepalive acknowledgements are header-only.
func (t MessageType) HasPayload() bool {
	return t != TypeOutOfService && t != TypeKeepalive
}

// Header is a decoded message header. When Estimated is set, Length must not
// be trusted; the exact header follows immediately.
type Header struct {
	Type      MessageType
	Length    uint32
	Estimated bool
}

// ParseHeader decodes the first HeaderSize bytes of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, malformed(len(data), "header requires %d bytes, got %d", HeaderSize, len(data))
	}

	if data[0] != HeaderMarker {
		return Header{}, malformed(0, "unexpected header marker 0x%02x", data[0])
	}

	return Header{
		Type:      MessageType(data[1]),
		Estimated: data[2]&flagEstimated != 0,
		Length:    binary.LittleEndian.Uint32(data[4:HeaderSize]),
	}, nil
}

// EncodeHeader produces the wire form of h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = HeaderMarker
	buf[1] = byte(h.Type)

	if h.Estimated {
		buf[2] = flagEstimated
	}

	binary.LittleEndian.PutUint32(buf[4:], h.Length)

	return buf
}
