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

package transport

import (
	"context"
	"fmt"

	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
)

// MessageKind is the WebSocket opcode class of a received message.
type MessageKind int

const (
	KindText MessageKind = iota
	KindBinary
)

// Message is one WebSocket message.
type Message struct {
	Kind MessageKind
	Data []byte
}

// MessageSource yields WebSocket messages in arrival order.
type MessageSource interface {
	Receive(ctx context.Context) (Message, error)
}

// Frame is one logical Miniserver message: a header plus the payload it
// announces. Text is set when the payload arrived as a text message.
type Frame struct {
	Header  protocol.Header
	Payload []byte
	Text    bool
}

// FrameReader reassembles frames from the message stream. The Miniserver
// sends the 8-byte header as its own binary message followed by the payload,
// but some firmware combines both into one message. An estimated header is
// always followed by the exact one.
type FrameReader struct {
	src MessageSource
}

// NewFrameReader wraps src.
func NewFrameReader(src MessageSource) *FrameReader {
	return &FrameReader{src: src}
}

// Next returns the next complete frame. Header-only types (out-of-service,
// keepalive) are returned without reading further.
func (r *FrameReader) Next(ctx context.Context) (Frame, error) {
	for {
		msg, err := r.src.Receive(ctx)
		if err != nil {
			return Frame{}, err
		}

		if msg.Kind == KindText {
			// A text reply without its header. Treat it as a text frame.
			return Frame{
				Header:  protocol.Header{Type: protocol.TypeText, Length: uint32(len(msg.Data))},
				Payload: msg.Data,
				Text:    true,
			}, nil
		}

		hdr, err := protocol.ParseHeader(msg.Data)
		if err != nil {
			return Frame{}, err
		}

		if len(msg.Data) > protocol.HeaderSize {
			f := Frame{Header: hdr, Payload: msg.Data[protocol.HeaderSize:]}
			if err := checkLength(f); err != nil {
				return Frame{}, err
			}

			return f, nil
		}

		if hdr.Estimated {
			continue
		}

		if !hdr.Type.HasPayload() || hdr.Length == 0 {
			return Frame{Header: hdr}, nil
		}

		payload, err := r.src.Receive(ctx)
		if err != nil {
			return Frame{}, err
		}

		f := Frame{Header: hdr, Payload: payload.Data, Text: payload.Kind == KindText}
		if err := checkLength(f); err != nil {
			return Frame{}, err
		}

		return f, nil
	}
}

// NextText returns the payload of the next text or file frame, discarding
// anything else in between.
func (r *FrameReader) NextText(ctx context.Context) (string, error) {
	for {
		f, err := r.Next(ctx)
		if err != nil {
			return "", err
		}

		if f.Header.Type == protocol.TypeText || f.Header.Type == protocol.TypeBinaryFile {
			return string(f.Payload), nil
		}
	}
}

// checkLength enforces the declared length on event payloads, which are
// decoded by offset.
func checkLength(f Frame) error {
	switch f.Header.Type {
	case protocol.TypeValueStates, protocol.TypeTextStates:
		if f.Text {
			return &protocol.MalformedFrameError{
				Offset: protocol.HeaderSize,
				Reason: fmt.Sprintf("%s payload arrived as text", f.Header.Type),
			}
		}

		if uint64(len(f.Payload)) != uint64(f.Header.Length) {
			return &protocol.MalformedFrameError{
				Offset: protocol.HeaderSize,
				Reason: fmt.Sprintf("payload is %d bytes, header declares %d", len(f.Payload), f.Header.Length),
			}
		}
	default:
	}

	return nil
}
