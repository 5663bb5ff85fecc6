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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/loxone-exporter/pkg/logger"
)

var errDown = errors.New("connection reset")

func newTestAuthenticator(keys KeySource, issued time.Time) *Authenticator {
	a := NewAuthenticator(Config{}, keys, logger.NewTestLogger())
	a.now = func() time.Time { return issued }

	return a
}

func TestAuthenticateTokenFlowOverWebSocketKey(t *testing.T) {
	ms := newFakeMiniserver(t)
	issued := FromEpoch(ms.validUntil - 3600)

	cred, err := newTestAuthenticator(nil, issued).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)

	require.Len(t, ms.sent, 4)
	assert.Equal(t, "jdev/sys/getPublicKey", ms.sent[0])
	assert.True(t, strings.HasPrefix(ms.sent[1], "jdev/sys/keyexchange/"))
	assert.Equal(t, "jdev/sys/getkey2/admin", ms.sent[2])
	assert.True(t, strings.HasPrefix(ms.sent[3], "jdev/sys/enc/"))

	require.Len(t, ms.inner, 1)
	assert.True(t, strings.HasPrefix(ms.inner[0], "jdev/sys/getjwt/"))
	assert.True(t, strings.HasSuffix(ms.inner[0], "/admin/2/"+defaultClientUUID+"/"+defaultClientInfo))

	assert.Equal(t, KindToken, cred.Kind)
	assert.Equal(t, "tok-1", cred.Token)
	assert.Equal(t, "SHA256", cred.HashAlg)
	assert.Equal(t, 2, cred.Rights)
	assert.Equal(t, FromEpoch(ms.validUntil), cred.ValidUntil)
	assert.Equal(t, issued.Add(30*time.Minute), cred.RefreshAt())
}

func TestAuthenticatePrefersKeySource(t *testing.T) {
	ms := newFakeMiniserver(t)
	keys := staticKeySource{key: certificatePEM(t, ms.priv)}

	_, err := newTestAuthenticator(keys, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ms.sent[0], "jdev/sys/keyexchange/"))
	assert.NotContains(t, ms.sent, "jdev/sys/getPublicKey")
}

func TestAuthenticateKeySourceFailureFallsBackToWebSocket(t *testing.T) {
	ms := newFakeMiniserver(t)
	keys := staticKeySource{err: errDown}

	cred, err := newTestAuthenticator(keys, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, KindToken, cred.Kind)
	assert.Equal(t, "jdev/sys/getPublicKey", ms.sent[0])
}

func TestAuthenticateSHA1Controller(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.hashAlg = "SHA1"

	cred, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "SHA1", cred.HashAlg)
}

func TestAuthenticateRetriesWithGetToken(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.noJWT = true

	cred, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, KindToken, cred.Kind)

	require.Len(t, ms.inner, 2)
	assert.True(t, strings.HasPrefix(ms.inner[0], "jdev/sys/getjwt/"))
	assert.True(t, strings.HasPrefix(ms.inner[1], "jdev/sys/gettoken/"))
}

func TestAuthenticateWrongPasswordIsRejected(t *testing.T) {
	ms := newFakeMiniserver(t)

	cred, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "wrong")
	require.Error(t, err)
	assert.Nil(t, cred)
	require.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrProtocol)

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, ReasonRejected, authErr.Reason)
	assert.Equal(t, "401", authErr.Code)

	assert.NotContains(t, ms.sent, "jdev/sys/getkey", "a rejection must not fall back to hash login")
}

func TestAuthenticateLockedAccountIsRejected(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.lockedCode = "403"

	_, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.ErrorIs(t, err, ErrRejected)
}

func TestAuthenticateFallsBackToHash(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.noKeyExchange = true

	cred, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)

	assert.Equal(t, KindHash, cred.Kind)
	assert.Empty(t, cred.Token)
	assert.True(t, cred.RefreshAt().IsZero())
	assert.Contains(t, ms.sent, "jdev/sys/getkey")
	assert.True(t, strings.HasPrefix(ms.sent[len(ms.sent)-1], "authenticate/"))
}

func TestAuthenticateHashRejected(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.noKeyExchange = true

	_, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "wrong")
	require.ErrorIs(t, err, ErrRejected)

	var authErr *Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "authenticate", authErr.Step)
}

func TestAuthenticateTransportFailureIsProtocol(t *testing.T) {
	ms := newFakeMiniserver(t)
	ms.sendErr = errDown

	_, err := newTestAuthenticator(nil, time.Now()).Authenticate(context.Background(), ms, "admin", "secret")
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorIs(t, err, errDown)
}

func TestRefresh(t *testing.T) {
	ms := newFakeMiniserver(t)
	a := newTestAuthenticator(nil, FromEpoch(ms.validUntil-3600))

	cred, err := a.Authenticate(context.Background(), ms, "admin", "secret")
	require.NoError(t, err)

	later := FromEpoch(ms.validUntil - 1800)
	a.now = func() time.Time { return later }

	next, err := a.Refresh(context.Background(), ms, cred)
	require.NoError(t, err)

	assert.Equal(t, "jdev/sys/getkey", ms.sent[len(ms.sent)-2])
	assert.True(t, strings.HasPrefix(ms.sent[len(ms.sent)-1], "jdev/sys/refreshjwt/"))
	assert.True(t, strings.HasSuffix(ms.sent[len(ms.sent)-1], "/admin"))

	assert.Equal(t, cred.Token, next.Token)
	assert.Equal(t, cred.ValidUntil.Add(time.Hour), next.ValidUntil)
	assert.Equal(t, later, next.IssuedAt)
	assert.True(t, next.RefreshAt().After(cred.RefreshAt()))
}

func TestRefreshRejectedToken(t *testing.T) {
	ms := newFakeMiniserver(t)
	a := newTestAuthenticator(nil, time.Now())

	cred := &Credential{Kind: KindToken, Username: "admin", Token: "stale", HashAlg: "SHA256"}

	_, err := a.Refresh(context.Background(), ms, cred)
	require.ErrorIs(t, err, ErrRejected)

	_, err = a.Refresh(context.Background(), ms, &Credential{Kind: KindHash})
	require.ErrorIs(t, err, ErrProtocol)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		code  string
		ok    bool
		value string
	}{
		{"quoted", `{"LL":{"control":"jdev/sys/getkey","value":"ab01","Code":"200"}}`, "200", true, "ab01"},
		{"numeric lowercase", `{"LL":{"control":"dev/sps/enablebinstatusupdate","value":"1","code":200}}`, "200", true, "1"},
		{"refused", `{"LL":{"control":"authenticate/x","value":"","Code":"401"}}`, "401", false, ""},
		{"bare", `{"control":"x","value":5,"Code":"200"}`, "200", true, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseReply(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.code, r.Code)
			assert.Equal(t, tt.ok, r.OK())
			assert.Equal(t, tt.value, r.StringValue())
		})
	}

	_, err := ParseReply("not json")
	require.Error(t, err)
}

func TestParsePublicKeyFormats(t *testing.T) {
	key := rsaTestKey(t)
	cert := certificatePEM(t, key)

	pub, err := parsePublicKey(cert)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, pub.N)

	var body []string
	for _, line := range strings.Split(strings.TrimSpace(cert), "\n") {
		if !strings.HasPrefix(line, "-----") {
			body = append(body, line)
		}
	}

	pub, err = parsePublicKey(strings.Join(body, ""))
	require.NoError(t, err, "bare base64 is wrapped")
	assert.Equal(t, key.PublicKey.N, pub.N)

	_, err = parsePublicKey("garbage")
	require.Error(t, err)
}

func TestEpochConversion(t *testing.T) {
	assert.Equal(t, time.Date(2009, 1, 2, 0, 0, 0, 0, time.UTC), FromEpoch(86400))
	assert.True(t, FromEpoch(0).IsZero())
	assert.InDelta(t, 86400.5, ToEpoch(FromEpoch(86400.5)), 1e-6)
}
