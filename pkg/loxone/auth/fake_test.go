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
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // test double for the legacy login
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"hash"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error

	errNoReply = errors.New("no reply queued")
)

func rsaTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, testKeyErr)

	return testKey
}

// certificatePEM renders the public key with the CERTIFICATE label the
// Miniserver uses.
func certificatePEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// fakeMiniserver answers handshake commands the way firmware 10+ does.
type fakeMiniserver struct {
	t        *testing.T
	priv     *rsa.PrivateKey
	username string
	password string
	hashAlg  string

	// Behaviour switches.
	noKeyExchange bool // token flow unsupported: keyexchange fails
	noJWT         bool // getjwt unknown: answer 400 so the client retries gettoken
	lockedCode    string

	exchangeKey string
	userSalt    string
	aesKey      []byte
	aesIV       []byte
	token       string
	validUntil  float64

	sent    []string
	inner   []string
	pending []string
	sendErr error
}

func newFakeMiniserver(t *testing.T) *fakeMiniserver {
	t.Helper()

	return &fakeMiniserver{
		t:           t,
		priv:        rsaTestKey(t),
		username:    "admin",
		password:    "secret",
		hashAlg:     "SHA256",
		exchangeKey: "3132333435363738393041424344",
		userSalt:    "7a3f9b2c01",
		token:       "tok-1",
		validUntil:  500_000_000,
	}
}

func (f *fakeMiniserver) Send(_ context.Context, cmd string) error {
	if f.sendErr != nil {
		return f.sendErr
	}

	f.sent = append(f.sent, cmd)
	f.pending = append(f.pending, f.handle(cmd))

	return nil
}

func (f *fakeMiniserver) ReceiveText(_ context.Context) (string, error) {
	if len(f.pending) == 0 {
		return "", errNoReply
	}

	next := f.pending[0]
	f.pending = f.pending[1:]

	return next, nil
}

func ll(control, code string, value interface{}) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"LL": map[string]interface{}{"control": control, "value": value, "Code": code},
	})

	return string(raw)
}

func (f *fakeMiniserver) alg() func() hash.Hash {
	if f.hashAlg == "SHA1" {
		return sha1.New
	}

	return sha256.New
}

func (f *fakeMiniserver) hmacHex(h func() hash.Hash, keyHex, msg string) string {
	key, err := hex.DecodeString(keyHex)
	require.NoError(f.t, err)

	mac := hmac.New(h, key)
	mac.Write([]byte(msg))

	return hex.EncodeToString(mac.Sum(nil))
}

func (f *fakeMiniserver) expectedCredentialHash() string {
	d := f.alg()()
	d.Write([]byte(f.password + ":" + f.userSalt))
	pw := strings.ToUpper(hex.EncodeToString(d.Sum(nil)))

	return f.hmacHex(f.alg(), f.exchangeKey, f.username+":"+pw)
}

func (f *fakeMiniserver) handle(cmd string) string {
	switch {
	case cmd == "jdev/sys/getPublicKey":
		return ll(cmd, "200", certificatePEM(f.t, f.priv))

	case strings.HasPrefix(cmd, "jdev/sys/keyexchange/"):
		if f.noKeyExchange {
			return ll(cmd, "500", "")
		}

		return f.keyExchange(cmd)

	case strings.HasPrefix(cmd, "jdev/sys/getkey2/"):
		return ll(cmd, "200", map[string]string{
			"key": f.exchangeKey, "salt": f.userSalt, "hashAlg": f.hashAlg,
		})

	case strings.HasPrefix(cmd, "jdev/sys/enc/"):
		return f.encrypted(cmd)

	case cmd == "jdev/sys/getkey":
		return ll(cmd, "200", f.exchangeKey)

	case strings.HasPrefix(cmd, "authenticate/"):
		want := f.hmacHex(sha1.New, f.exchangeKey, f.username+":"+f.password)
		if strings.TrimPrefix(cmd, "authenticate/") != want {
			return ll(cmd, "401", "")
		}

		return ll(cmd, "200", "")

	case strings.HasPrefix(cmd, "jdev/sys/refreshjwt/"):
		parts := strings.Split(strings.TrimPrefix(cmd, "jdev/sys/refreshjwt/"), "/")
		if len(parts) != 2 || parts[0] != f.hmacHex(f.alg(), f.exchangeKey, f.token) {
			return ll(cmd, "401", "")
		}

		f.validUntil += 3600

		return ll(cmd, "200", map[string]interface{}{
			"validUntil": f.validUntil, "tokenRights": 2, "unsecurePass": false,
		})
	}

	return ll(cmd, "404", "")
}

func (f *fakeMiniserver) keyExchange(cmd string) string {
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(cmd, "jdev/sys/keyexchange/"))
	require.NoError(f.t, err)

	plain, err := rsa.DecryptPKCS1v15(rand.Reader, f.priv, sealed)
	require.NoError(f.t, err)

	keyHex, ivHex, ok := strings.Cut(string(plain), ":")
	require.True(f.t, ok)

	f.aesKey, err = hex.DecodeString(keyHex)
	require.NoError(f.t, err)
	f.aesIV, err = hex.DecodeString(ivHex)
	require.NoError(f.t, err)

	return ll("jdev/sys/keyexchange", "200", "")
}

func (f *fakeMiniserver) decrypt(cmd string) string {
	b64, err := url.QueryUnescape(strings.TrimPrefix(cmd, "jdev/sys/enc/"))
	require.NoError(f.t, err)

	sealed, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(f.t, err)
	require.Zero(f.t, len(sealed)%aes.BlockSize)

	block, err := aes.NewCipher(f.aesKey)
	require.NoError(f.t, err)

	plain := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(block, f.aesIV).CryptBlocks(plain, sealed)

	pad := int(plain[len(plain)-1])
	require.True(f.t, pad > 0 && pad <= aes.BlockSize)
	require.Equal(f.t, bytes.Repeat([]byte{byte(pad)}, pad), plain[len(plain)-pad:])
	plain = plain[:len(plain)-pad]

	require.Equal(f.t, byte(0), plain[len(plain)-1], "command is NUL terminated")

	text := string(plain[:len(plain)-1])
	require.True(f.t, strings.HasPrefix(text, "salt/"))

	parts := strings.SplitN(text, "/", 3)
	require.Len(f.t, parts, 3)
	require.Len(f.t, parts[1], 2*saltSize)

	return parts[2]
}

func (f *fakeMiniserver) encrypted(cmd string) string {
	inner := f.decrypt(cmd)
	f.inner = append(f.inner, inner)

	parts := strings.Split(inner, "/")
	// jdev/sys/<verb>/<hash>/<user>/<permission>/<uuid>/<info>
	if len(parts) != 8 {
		return ll(inner, "400", "")
	}

	verb, credHash, user := parts[2], parts[3], parts[4]

	if verb == "getjwt" && f.noJWT {
		return ll(inner, "400", "")
	}

	if verb != "getjwt" && verb != "gettoken" {
		return ll(inner, "404", "")
	}

	if f.lockedCode != "" {
		return ll(inner, f.lockedCode, "")
	}

	if user != f.username || credHash != f.expectedCredentialHash() {
		return ll(inner, "401", "")
	}

	return ll(inner, "200", map[string]interface{}{
		"token":        f.token,
		"key":          "4142434445",
		"validUntil":   f.validUntil,
		"tokenRights":  2,
		"unsecurePass": false,
	})
}

type staticKeySource struct {
	key string
	err error
}

func (s staticKeySource) PublicKey(context.Context) (string, error) {
	return s.key, s.err
}
