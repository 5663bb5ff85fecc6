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

package auth

import (
	"context"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // legacy hash login is HMAC-SHA1 by definition
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

type key2Value struct {
	Key     string `json:"key"`
	Salt    string `json:"salt"`
	HashAlg string `json:"hashAlg"`
}

type tokenValue struct {
	Token       string  `json:"token"`
	Key         string  `json:"key"`
	ValidUntil  float64 `json:"validUntil"`
	TokenRights int     `json:"tokenRights"`
}

func (a *Authenticator) tokenAuth(ctx context.Context, conn Conn, username, password string) (*Credential, error) {
	pub, err := a.publicKey(ctx, conn)
	if err != nil {
		return nil, err
	}

	sess, err := newSession(a.rand)
	if err != nil {
		return nil, protocolError("keyexchange", err)
	}

	payload, err := sess.keyExchangePayload(a.rand, pub)
	if err != nil {
		return nil, protocolError("keyexchange", err)
	}

	if _, err := expect(ctx, conn, "keyexchange", "jdev/sys/keyexchange/"+payload); err != nil {
		return nil, err
	}

	r, err := expect(ctx, conn, "getkey2", "jdev/sys/getkey2/"+username)
	if err != nil {
		return nil, err
	}

	var k2 key2Value
	if err := json.Unmarshal(r.Value, &k2); err != nil {
		return nil, protocolError("getkey2", fmt.Errorf("%w: %w", errBadReply, err))
	}

	h, err := hashFunc(k2.HashAlg)
	if err != nil {
		return nil, protocolError("getkey2", err)
	}

	pwHash := passwordHash(h, password, k2.Salt)

	credHash, err := keyedHash(h, k2.Key, username+":"+pwHash)
	if err != nil {
		return nil, protocolError("getkey2", err)
	}

	salt, err := randomHex(a.rand, saltSize)
	if err != nil {
		return nil, protocolError("getjwt", err)
	}

	issued := a.now()

	r, err = a.requestToken(ctx, conn, sess, salt, "getjwt", credHash, username)
	if err == nil && !r.OK() {
		a.logger.Debug().Str("code", r.Code).Msg("getjwt refused, retrying with gettoken")

		r, err = a.requestToken(ctx, conn, sess, salt, "gettoken", credHash, username)
	}

	if err != nil {
		return nil, err
	}

	if !r.OK() {
		return nil, replyError("gettoken", r)
	}

	var tv tokenValue
	if err := json.Unmarshal(r.Value, &tv); err != nil {
		return nil, protocolError("gettoken", fmt.Errorf("%w: %w", errBadReply, err))
	}

	alg := k2.HashAlg
	if alg == "" {
		alg = "SHA256"
	}

	return &Credential{
		Kind:       KindToken,
		Username:   username,
		Token:      tv.Token,
		Key:        tv.Key,
		HashAlg:    alg,
		Rights:     tv.TokenRights,
		IssuedAt:   issued,
		ValidUntil: FromEpoch(tv.ValidUntil),
	}, nil
}

func (a *Authenticator) requestToken(
	ctx context.Context, conn Conn, sess *session, salt, verb, credHash, username string,
) (*Reply, error) {
	cmd := fmt.Sprintf("jdev/sys/%s/%s/%s/%d/%s/%s",
		verb, credHash, username, a.cfg.Permission, a.cfg.ClientUUID, a.cfg.ClientInfo)

	enc, err := sess.encryptCommand(cmd, salt)
	if err != nil {
		return nil, protocolError(verb, err)
	}

	return roundTrip(ctx, conn, verb, "jdev/sys/enc/"+enc)
}

// publicKey prefers the out-of-band key source and falls back to asking over
// the WebSocket.
func (a *Authenticator) publicKey(ctx context.Context, conn Conn) (*rsa.PublicKey, error) {
	if a.keys != nil {
		raw, err := a.keys.PublicKey(ctx)
		if err == nil {
			pub, perr := parsePublicKey(raw)
			if perr == nil {
				return pub, nil
			}

			err = perr
		}

		a.logger.Debug().Err(err).Msg("Public key not available over HTTP, asking over WebSocket")
	}

	r, err := expect(ctx, conn, "getPublicKey", "jdev/sys/getPublicKey")
	if err != nil {
		return nil, err
	}

	pub, err := parsePublicKey(r.StringValue())
	if err != nil {
		return nil, protocolError("getPublicKey", err)
	}

	return pub, nil
}

func (a *Authenticator) hashAuth(ctx context.Context, conn Conn, username, password string) (*Credential, error) {
	r, err := expect(ctx, conn, "getkey", "jdev/sys/getkey")
	if err != nil {
		return nil, err
	}

	proof, err := keyedHash(sha1.New, r.StringValue(), username+":"+password)
	if err != nil {
		return nil, protocolError("getkey", err)
	}

	if _, err := expect(ctx, conn, "authenticate", "authenticate/"+proof); err != nil {
		return nil, err
	}

	return &Credential{Kind: KindHash, Username: username, IssuedAt: a.now()}, nil
}

// Refresh extends a token credential and returns the updated copy.
func (a *Authenticator) Refresh(ctx context.Context, conn Conn, cred *Credential) (*Credential, error) {
	if cred == nil || cred.Kind != KindToken {
		return nil, protocolError("refreshjwt", fmt.Errorf("%w: credential is not a token", errBadReply))
	}

	r, err := expect(ctx, conn, "getkey", "jdev/sys/getkey")
	if err != nil {
		return nil, err
	}

	h, err := hashFunc(cred.HashAlg)
	if err != nil {
		return nil, protocolError("refreshjwt", err)
	}

	tokenHash, err := keyedHash(h, r.StringValue(), cred.Token)
	if err != nil {
		return nil, protocolError("getkey", err)
	}

	issued := a.now()

	r, err = expect(ctx, conn, "refreshjwt", "jdev/sys/refreshjwt/"+tokenHash+"/"+cred.Username)
	if err != nil {
		return nil, err
	}

	var tv tokenValue
	if err := json.Unmarshal(r.Value, &tv); err != nil {
		return nil, protocolError("refreshjwt", fmt.Errorf("%w: %w", errBadReply, err))
	}

	next := *cred
	next.IssuedAt = issued
	next.ValidUntil = FromEpoch(tv.ValidUntil)

	if tv.Token != "" {
		next.Token = tv.Token
	}

	if tv.TokenRights != 0 {
		next.Rights = tv.TokenRights
	}

	return &next, nil
}

// FromEpoch converts Miniserver seconds into wall-clock time.
func FromEpoch(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}

	whole, frac := math.Modf(seconds)

	return Epoch.Add(time.Duration(whole)*time.Second + time.Duration(frac*float64(time.Second)))
}

// ToEpoch is the inverse of FromEpoch.
func ToEpoch(t time.Time) float64 {
	return t.Sub(Epoch).Seconds()
}

func randomHex(rand io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand, b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
