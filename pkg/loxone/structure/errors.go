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

package structure

import (
	"errors"
	"fmt"
)

// ErrMalformedStructure is matched by every MalformedStructureError.
var ErrMalformedStructure = errors.New("malformed structure")

// MalformedStructureError reports a structure document that cannot be turned
// into an entity graph. Path locates the offending node, e.g.
// "controls.<uuid>.states".
type MalformedStructureError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedStructureError) Error() string {
	msg := "malformed structure"
	if e.Path != "" {
		msg += " at " + e.Path
	}

	msg += ": " + e.Reason

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (*MalformedStructureError) Is(target error) bool {
	return target == ErrMalformedStructure
}

func (e *MalformedStructureError) Unwrap() error {
	return e.Err
}

func malformed(path, format string, args ...interface{}) *MalformedStructureError {
	return &MalformedStructureError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
