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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/loxone-exporter/pkg/loxone/protocol"
	"github.com/carverauto/loxone-exporter/pkg/loxone/transport"
	"github.com/carverauto/loxone-exporter/pkg/models"
)

const (
	lampWire = "aaaaaaaa-aaaa-aaaa-aaaa-000000000001"
	signWire = "aaaaaaaa-aaaa-aaaa-aaaa-000000000002"
	lamp     = "0f000000-0000-0000-0000-000000000001"
	sign     = "0f000000-0000-0000-0000-000000000002"
)

const bedroomDoc = `{
	"msInfo": {"serialNr": "504F94000001"},
	"softwareVersion": "15.0.0.1",
	"rooms": {"11111111-2222-3333-4444555555555555": {"name": "Bedroom"}},
	"controls": {
		"0f000000-0000-0000-0000000000000001": {
			"name": "Lamp", "type": "Switch",
			"room": "11111111-2222-3333-4444555555555555",
			"states": {"active": "aaaaaaaa-aaaa-aaaa-aaaa000000000001"}
		},
		"0f000000-0000-0000-0000000000000002": {
			"name": "Door Sign", "type": "TextState",
			"states": {"textAndIcon": "aaaaaaaa-aaaa-aaaa-aaaa000000000002"}
		}
	}
}`

const subscribeOK = `{"LL":{"control":"dev/sps/enablebinstatusupdate","value":"1","Code":"200"}}`

// fakeConn is a scripted Miniserver channel. Commands are answered by
// pushing frames; reads block until a frame is pushed or the channel closes.
type fakeConn struct {
	mu   sync.Mutex
	sent []string

	frames    chan transport.Frame
	closed    chan struct{}
	closeOnce sync.Once

	structure    string
	ackKeepalive bool
	// onSend may answer a command itself; returning false falls through to
	// the default replies.
	onSend func(c *fakeConn, cmd string) bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:       make(chan transport.Frame, 64),
		closed:       make(chan struct{}),
		structure:    bedroomDoc,
		ackKeepalive: true,
	}
}

func (c *fakeConn) Send(_ context.Context, cmd string) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()

	if c.onSend != nil && c.onSend(c, cmd) {
		return nil
	}

	switch {
	case cmd == cmdStructure:
		c.push(fileFrame(c.structure))
	case cmd == cmdSubscribe:
		c.push(textFrame(subscribeOK))
	case cmd == cmdKeepalive && c.ackKeepalive:
		c.push(headerFrame(protocol.TypeKeepalive))
	}

	return nil
}

func (c *fakeConn) ReadFrame(ctx context.Context) (transport.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return transport.Frame{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) ReceiveText(ctx context.Context) (string, error) {
	for {
		f, err := c.ReadFrame(ctx)
		if err != nil {
			return "", err
		}

		if f.Header.Type == protocol.TypeText || f.Header.Type == protocol.TypeBinaryFile {
			return string(f.Payload), nil
		}
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(f transport.Frame) {
	c.frames <- f
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.sent...)
}

func (c *fakeConn) count(cmd string) int {
	n := 0

	for _, s := range c.commands() {
		if s == cmd {
			n++
		}
	}

	return n
}

func textFrame(text string) transport.Frame {
	return transport.Frame{
		Header:  protocol.Header{Type: protocol.TypeText, Length: uint32(len(text))},
		Payload: []byte(text),
		Text:    true,
	}
}

func fileFrame(text string) transport.Frame {
	return transport.Frame{
		Header:  protocol.Header{Type: protocol.TypeBinaryFile, Length: uint32(len(text))},
		Payload: []byte(text),
		Text:    true,
	}
}

func headerFrame(t protocol.MessageType) transport.Frame {
	return transport.Frame{Header: protocol.Header{Type: t}}
}

func valueFrame(t *testing.T, values ...protocol.NumericValue) transport.Frame {
	t.Helper()

	payload, err := protocol.EncodeValueStates(values)
	require.NoError(t, err)

	return transport.Frame{
		Header:  protocol.Header{Type: protocol.TypeValueStates, Length: uint32(len(payload))},
		Payload: payload,
	}
}

func textStatesFrame(t *testing.T, values ...protocol.TextValue) transport.Frame {
	t.Helper()

	payload, err := protocol.EncodeTextStates(values)
	require.NoError(t, err)

	return transport.Frame{
		Header:  protocol.Header{Type: protocol.TypeTextStates, Length: uint32(len(payload))},
		Payload: payload,
	}
}

// transitionLog records phase transitions from the manager goroutine.
type transitionLog struct {
	mu      sync.Mutex
	entries []transitionEntry
	notify  chan transitionEntry
}

type transitionEntry struct {
	from, to models.Phase
	failures int
}

func newTransitionLog() *transitionLog {
	return &transitionLog{notify: make(chan transitionEntry, 256)}
}

func (l *transitionLog) record(from, to models.Phase, failures int) {
	e := transitionEntry{from: from, to: to, failures: failures}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	select {
	case l.notify <- e:
	default:
	}
}

func (l *transitionLog) all() []transitionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]transitionEntry(nil), l.entries...)
}

// waitFor blocks until a transition into phase is recorded.
func (l *transitionLog) waitFor(t *testing.T, phase models.Phase, timeout time.Duration) transitionEntry {
	t.Helper()

	deadline := time.After(timeout)

	for {
		select {
		case e := <-l.notify:
			if e.to == phase {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %s", phase)
			return transitionEntry{}
		}
	}
}
