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

// Package auth implements the Miniserver login handshakes: the token flow
// with RSA/AES key exchange and the legacy hash flow, plus token refresh.
//
// The Authenticator holds no per-connection state. All key material lives
// for the duration of one call.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

const (
	defaultClientUUID = "edfc5f9a-df3f-4cad-9dffac30c150c33e"
	defaultClientInfo = "loxone-exporter"
	// defaultPermission requests a web-access token.
	defaultPermission = 2
)

// Epoch is the zero point of Miniserver timestamps.
var Epoch = time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC)

// Conn is the request/reply channel a handshake runs over. ReceiveText
// returns the next text reply, skipping the binary header that precedes it.
type Conn interface {
	Send(ctx context.Context, cmd string) error
	ReceiveText(ctx context.Context) (string, error)
}

// KeySource fetches the Miniserver's RSA public key out of band, usually over
// HTTP.
type KeySource interface {
	PublicKey(ctx context.Context) (string, error)
}

// Kind tells token credentials from one-shot hash logins.
type Kind int

const (
	KindToken Kind = iota
	KindHash
)

func (k Kind) String() string {
	if k == KindHash {
		return "hash"
	}

	return "token"
}

// Credential is the result of a successful handshake.
type Credential struct {
	Kind       Kind
	Username   string
	Token      string
	Key        string
	HashAlg    string
	Rights     int
	IssuedAt   time.Time
	ValidUntil time.Time
}

// RefreshAt is the midpoint of the token validity window. It is zero for
// credentials that cannot be refreshed.
func (c *Credential) RefreshAt() time.Time {
	if c == nil || c.Kind != KindToken || c.ValidUntil.IsZero() || !c.ValidUntil.After(c.IssuedAt) {
		return time.Time{}
	}

	return c.IssuedAt.Add(c.ValidUntil.Sub(c.IssuedAt) / 2)
}

// Config tunes how the client identifies itself when requesting a token.
type Config struct {
	ClientUUID string
	ClientInfo string
	Permission int
}

// Authenticator runs login handshakes against one Miniserver.
type Authenticator struct {
	cfg    Config
	keys   KeySource
	logger logger.Logger
	rand   io.Reader
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. keys may be nil, in which case
// the public key is always requested over the WebSocket.
func NewAuthenticator(cfg Config, keys KeySource, log logger.Logger) *Authenticator {
	if cfg.ClientUUID == "" {
		cfg.ClientUUID = defaultClientUUID
	}

	if cfg.ClientInfo == "" {
		cfg.ClientInfo = defaultClientInfo
	}

	if cfg.Permission == 0 {
		cfg.Permission = defaultPermission
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   keys,
		logger: log,
		rand:   rand.Reader,
		now:    time.Now,
	}
}

// Authenticate logs in over conn. The token flow is tried first; a
// negotiation failure there falls back to the hash flow, while a rejection is
// returned as is.
func (a *Authenticator) Authenticate(ctx context.Context, conn Conn, username, password string) (*Credential, error) {
	cred, err := a.tokenAuth(ctx, conn, username, password)
	if err == nil {
		a.logger.Info().
			Str("username", username).
			Time("valid_until", cred.ValidUntil).
			Msg("Token authentication succeeded")

		return cred, nil
	}

	if errors.Is(err, ErrRejected) || ctx.Err() != nil {
		return nil, err
	}

	a.logger.Info().Err(err).Msg("Token authentication unavailable, falling back to hash authentication")

	cred, err = a.hashAuth(ctx, conn, username, password)
	if err != nil {
		return nil, err
	}

	a.logger.Info().Str("username", username).Msg("Hash authentication succeeded")

	return cred, nil
}

// roundTrip sends cmd and decodes the reply. Transport failures and
// undecodable replies are protocol errors.
func roundTrip(ctx context.Context, conn Conn, step, cmd string) (*Reply, error) {
	if err := conn.Send(ctx, cmd); err != nil {
		return nil, protocolError(step, err)
	}

	text, err := conn.ReceiveText(ctx)
	if err != nil {
		return nil, protocolError(step, err)
	}

	r, err := ParseReply(text)
	if err != nil {
		return nil, protocolError(step, err)
	}

	return r, nil
}

// expect performs roundTrip and turns a non-2xx reply into an Error.
func expect(ctx context.Context, conn Conn, step, cmd string) (*Reply, error) {
	r, err := roundTrip(ctx, conn, step, cmd)
	if err != nil {
		return nil, err
	}

	if !r.OK() {
		return nil, replyError(step, r)
	}

	return r, nil
}
