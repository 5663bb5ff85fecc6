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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // the Miniserver dictates SHA-1 on older firmware
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"hash"
	"io"
	"net/url"
	"strings"
)

const (
	aesKeySize = 32
	aesIVSize  = aes.BlockSize
	saltSize   = 16
)

// session is the symmetric material negotiated by one key exchange.
type session struct {
	key []byte
	iv  []byte
}

func newSession(rand io.Reader) (*session, error) {
	s := &session{key: make([]byte, aesKeySize), iv: make([]byte, aesIVSize)}

	if _, err := io.ReadFull(rand, s.key); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(rand, s.iv); err != nil {
		return nil, err
	}

	return s, nil
}

// keyExchangePayload RSA-encrypts "hex(key):hex(iv)" and base64-encodes it.
func (s *session) keyExchangePayload(rand io.Reader, pub *rsa.PublicKey) (string, error) {
	plain := hex.EncodeToString(s.key) + ":" + hex.EncodeToString(s.iv)

	sealed, err := rsa.EncryptPKCS1v15(rand, pub, []byte(plain))
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// encryptCommand wraps cmd for jdev/sys/enc/. The plaintext is
// "salt/<salt>/<cmd>\x00", PKCS#7 padded, AES-256-CBC encrypted, base64 and
// then query-escaped since base64 may contain '/' and '+'.
func (s *session) encryptCommand(cmd, salt string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	plain := pkcs7Pad([]byte("salt/"+salt+"/"+cmd+"\x00"), aes.BlockSize)
	sealed := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, s.iv).CryptBlocks(sealed, plain)

	return url.QueryEscape(base64.StdEncoding.EncodeToString(sealed)), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// normalizePublicKey turns what the Miniserver returns into a PEM block
// that can be decoded. Older firmware labels the key as a certificate and
// some responses carry bare base64.
func normalizePublicKey(raw string) string {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, "-----BEGIN CERTIFICATE-----", "-----BEGIN PUBLIC KEY-----\n")
	p = strings.ReplaceAll(p, "-----END CERTIFICATE-----", "\n-----END PUBLIC KEY-----\n")

	if !strings.HasPrefix(p, "-----BEGIN") {
		p = "-----BEGIN PUBLIC KEY-----\n" + p + "\n-----END PUBLIC KEY-----\n"
	}

	return p
}

func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(normalizePublicKey(raw)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", errBadPublicKey)
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}

		return nil, fmt.Errorf("%w: not an RSA key", errBadPublicKey)
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadPublicKey, err)
	}

	rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", errBadPublicKey)
	}

	return rsaKey, nil
}

func hashFunc(alg string) (func() hash.Hash, error) {
	switch strings.ToUpper(alg) {
	case "SHA1":
		return sha1.New, nil
	case "SHA256", "":
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedHash, alg)
	}
}

// passwordHash is UPPER(hex(HASH(password ":" salt))).
func passwordHash(h func() hash.Hash, password, salt string) string {
	d := h()
	d.Write([]byte(password + ":" + salt))

	return strings.ToUpper(hex.EncodeToString(d.Sum(nil)))
}

// keyedHash is hex(HMAC(key, msg)) where key is the hex-decoded exchange key.
func keyedHash(h func() hash.Hash, keyHex, msg string) (string, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("%w: exchange key is not hex: %w", errBadReply, err)
	}

	mac := hmac.New(h, key)
	mac.Write([]byte(msg))

	return hex.EncodeToString(mac.Sum(nil)), nil
}
