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

	"github.com/carverauto/loxone-exporter/pkg/loxone/transport"
)

type webSocketDialer struct {
	d *transport.Dialer
}

// NewWebSocketDialer adapts a transport dialer to the Dialer interface.
func NewWebSocketDialer(d *transport.Dialer) Dialer {
	return &webSocketDialer{d: d}
}

func (w *webSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ch, err := w.d.Dial(ctx)
	if err != nil {
		return nil, err
	}

	return ch, nil
}

// routedConn runs a handshake while the receive loop owns the channel. Text
// replies reach it through replies instead of a direct read.
type routedConn struct {
	conn    Conn
	replies <-chan string
}

func (r *routedConn) Send(ctx context.Context, cmd string) error {
	return r.conn.Send(ctx, cmd)
}

func (r *routedConn) ReceiveText(ctx context.Context) (string, error) {
	select {
	case text := <-r.replies:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
