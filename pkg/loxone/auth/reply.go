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
	"encoding/json"
	"fmt"
	"strings"
)

// Reply is the "LL" envelope the Miniserver wraps around every text answer.
type Reply struct {
	Control string
	Value   json.RawMessage
	Code    string
}

// ParseReply decodes a Miniserver text reply. The status code may arrive as
// "Code" or "code", quoted or numeric.
func ParseReply(text string) (*Reply, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadReply, err)
	}

	body := env
	if ll, ok := env["LL"]; ok {
		body = nil
		if err := json.Unmarshal(ll, &body); err != nil {
			return nil, fmt.Errorf("%w: LL: %w", errBadReply, err)
		}
	}

	r := &Reply{Value: body["value"]}

	if c, ok := body["control"]; ok {
		_ = json.Unmarshal(c, &r.Control)
	}

	code, ok := body["Code"]
	if !ok {
		code = body["code"]
	}

	r.Code = strings.Trim(string(bytes.TrimSpace(code)), `"`)

	return r, nil
}

// OK reports a 2xx status.
func (r *Reply) OK() bool {
	return strings.HasPrefix(r.Code, "2")
}

// StringValue returns the value as a string, accepting JSON strings and bare
// scalars.
func (r *Reply) StringValue() string {
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}

	return strings.TrimSpace(string(r.Value))
}
