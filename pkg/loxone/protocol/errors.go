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
)

// ErrMalformedFrame is matched by every MalformedFrameError via errors.Is.
var ErrMalformedFrame = errors.New("malformed frame")

// MalformedFrameError reports wire data that does not match the expected
// layout. Offset is the byte position at which decoding gave up.
type MalformedFrameError struct {
	Offset int
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame at offset %d: %s", e.Offset, e.Reason)
}

func (*MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(offset int, format string, args ...interface{}) error {
	return &MalformedFrameError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
