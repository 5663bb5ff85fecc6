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

package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GUIDSize is the wire size of an identifier.
const GUIDSize = 16

var errInvalidGUID = errors.New("invalid GUID")

// The first three GUID groups are little-endian on the wire, the last two
// are stored as-is. This permutation maps wire bytes to RFC 4122 order and
// is its own inverse.
var guidOrder = [GUIDSize]int{3, 2, 1, 0, 5, 4, 7, 6, 8, 9, 10, 11, 12, 13, 14, 15}

// DecodeGUID converts 16 wire bytes into the canonical lowercase
// 8-4-4-4-12 string form.
func DecodeGUID(b []byte) (string, error) {
	if len(b) < GUIDSize {
		return "", malformed(len(b), "identifier requires %d bytes, got %d", GUIDSize, len(b))
	}

	var u uuid.UUID
	for i, src := range guidOrder {
		u[i] = b[src]
	}

	return u.String(), nil
}

// GUIDBytes is the inverse of DecodeGUID. It accepts any notation accepted
// by CanonicalGUID.
func GUIDBytes(s string) ([]byte, error) {
	canonical, err := CanonicalGUID(s)
	if err != nil {
		return nil, err
	}

	u := uuid.MustParse(canonical)
	out := make([]byte, GUIDSize)

	for i, src := range guidOrder {
		out[src] = u[i]
	}

	return out, nil
}

// CanonicalGUID normalises the Miniserver's 8-4-4-16 notation, and
// any other hyphenation of 32 hex digits, to the 8-4-4-4-12 form produced
// by DecodeGUID.
func CanonicalGUID(s string) (string, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(compact) != 32 {
		return "", fmt.Errorf("%w: %q", errInvalidGUID, s)
	}

	u, err := uuid.Parse(compact)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", errInvalidGUID, s, err)
	}

	return u.String(), nil
}
