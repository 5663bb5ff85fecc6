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

// Package transport carries Miniserver traffic: the WebSocket command and
// event channel, and the plain HTTP endpoints used for the public key and
// the structure file.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("channel closed")

	errUnexpectedMessage = errors.New("unexpected websocket message type")
)

const (
	// WebSocketPath is the Miniserver's RFC 6455 endpoint.
	WebSocketPath = "/ws/rfc6455"

	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Dialer opens WebSocket channels to one Miniserver.
type Dialer struct {
	Host             string
	Port             int
	TLS              bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// URL returns the WebSocket endpoint.
func (d *Dialer) URL() string {
	scheme := "ws"
	if d.TLS {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   WebSocketPath,
	}

	return u.String()
}

// Dial opens a channel. ctx bounds the handshake only.
func (d *Dialer) Dial(ctx context.Context) (*Channel, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}

	wd := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{"remotecontrol"},
	}

	conn, resp, err := wd.DialContext(ctx, d.URL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL(), err)
	}

	return NewChannel(conn, d.WriteTimeout), nil
}

// Channel is an open WebSocket connection. Writers are serialised; a single
// goroutine may read at a time.
type Channel struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	frames       *FrameReader

	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannel wraps an established connection.
func NewChannel(conn *websocket.Conn, writeTimeout time.Duration) *Channel {
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}

	c := &Channel{
		conn:         conn,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
	c.frames = NewFrameReader(c)

	return c
}

// Send writes one text command.
func (c *Channel) Send(ctx context.Context, cmd string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		return c.wrap(err)
	}

	return nil
}

// Receive reads one message. The context deadline, if any, becomes the read
// deadline; an expired read leaves the connection unusable.
func (c *Channel) Receive(ctx context.Context) (Message, error) {
	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Message{}, c.wrap(err)
	}

	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, c.wrap(err)
	}

	switch mt {
	case websocket.TextMessage:
		return Message{Kind: KindText, Data: data}, nil
	case websocket.BinaryMessage:
		return Message{Kind: KindBinary, Data: data}, nil
	default:
		return Message{}, fmt.Errorf("%w: %d", errUnexpectedMessage, mt)
	}
}

// ReadFrame returns the next reassembled frame.
func (c *Channel) ReadFrame(ctx context.Context) (Frame, error) {
	return c.frames.Next(ctx)
}

// ReceiveText returns the next text reply, skipping headers and events.
func (c *Channel) ReceiveText(ctx context.Context) (string, error) {
	return c.frames.NextText(ctx)
}

// Close sends a close frame and tears down the connection. Pending reads
// return immediately. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)

		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))

		err = c.conn.Close()
	})

	return err
}

func (c *Channel) wrap(err error) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return err
	}
}
