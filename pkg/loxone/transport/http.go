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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carverauto/loxone-exporter/pkg/loxone/auth"
)

var (
	// ErrHTTPStatus is returned for non-2xx HTTP responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	errKeyRefused = errors.New("public key request refused")
)

const (
	publicKeyPath = "/jdev/sys/getPublicKey"
	structurePath = "/data/LoxAPP3.json"

	defaultHTTPTimeout = 10 * time.Second
	// maxStructureSize bounds the structure download.
	maxStructureSize = 64 << 20
)

// HTTPClient talks to the Miniserver's plain HTTP endpoints with basic auth.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewHTTPClient creates a client for host:port. A zero timeout selects the
// default of ten seconds.
func NewHTTPClient(host string, port int, useTLS bool, username, password string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(port))}

	return &HTTPClient{
		baseURL:  u.String(),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

// PublicKey fetches the RSA public key, as returned by the Miniserver.
func (c *HTTPClient) PublicKey(ctx context.Context) (string, error) {
	body, err := c.get(ctx, publicKeyPath, 1<<16)
	if err != nil {
		return "", err
	}

	r, err := auth.ParseReply(string(body))
	if err != nil {
		return "", err
	}

	if !r.OK() {
		return "", fmt.Errorf("%w: code %s", errKeyRefused, r.Code)
	}

	return r.StringValue(), nil
}

// Structure downloads the structure file.
func (c *HTTPClient) Structure(ctx context.Context) ([]byte, error) {
	return c.get(ctx, structurePath, maxStructureSize)
}

func (c *HTTPClient) get(ctx context.Context, path string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrHTTPStatus, path, resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
