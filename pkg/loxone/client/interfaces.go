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

//go:generate mockgen -destination=mock_client.go -package=client github.com/carverauto/loxone-exporter/pkg/loxone/client Conn,Dialer,Authenticator,StructureFetcher

package client

import (
	"context"

	"github.com/carverauto/loxone-exporter/pkg/loxone/auth"
	"github.com/carverauto/loxone-exporter/pkg/loxone/transport"
)

// Conn is an open command and event channel to a Miniserver. Send may be
// called concurrently with reads; reads are issued from one goroutine.
type Conn interface {
	Send(ctx context.Context, cmd string) error
	ReadFrame(ctx context.Context) (transport.Frame, error)
	ReceiveText(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Authenticator runs login and token refresh handshakes.
type Authenticator interface {
	Authenticate(ctx context.Context, conn auth.Conn, username, password string) (*auth.Credential, error)
	Refresh(ctx context.Context, conn auth.Conn, cred *auth.Credential) (*auth.Credential, error)
}

// StructureFetcher downloads the structure file out of band.
type StructureFetcher interface {
	Structure(ctx context.Context) ([]byte, error)
}
