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
	"errors"
	"fmt"
)

var (
	// ErrRejected matches authentication errors where the Miniserver refused
	// the credentials.
	ErrRejected = errors.New("credentials rejected")
	// ErrProtocol matches authentication errors caused by transport failures
	// or unexpected replies.
	ErrProtocol = errors.New("authentication protocol failure")

	errUnsupportedHash = errors.New("unsupported hash algorithm")
	errBadPublicKey    = errors.New("unusable public key")
	errBadReply        = errors.New("unexpected reply")
)

// Reason distinguishes a refused login from a failed negotiation.
type Reason int

const (
	ReasonProtocol Reason = iota
	ReasonRejected
)

func (r Reason) String() string {
	if r == ReasonRejected {
		return "rejected"
	}

	return "protocol"
}

// Error is returned by every failed handshake. Step names the command that
// failed and Code carries the Miniserver status code when one was received.
type Error struct {
	Reason Reason
	Step   string
	Code   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("authentication %s at %s", e.Reason, e.Step)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Reason == ReasonRejected
	case ErrProtocol:
		return e.Reason == ReasonProtocol
	default:
		return false
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func protocolError(step string, err error) *Error {
	return &Error{Reason: ReasonProtocol, Step: step, Err: err}
}

// replyError classifies a non-success reply. 401 and 403 mean the account or
// password was refused; anything else is a negotiation failure.
func replyError(step string, r *Reply) *Error {
	reason := ReasonProtocol
	if r.Code == "401" || r.Code == "403" {
		reason = ReasonRejected
	}

	return &Error{Reason: reason, Step: step, Code: r.Code}
}
