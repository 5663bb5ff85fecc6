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

package logger

import (
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

const redacted = "****"

// Each pattern keeps group 1 and masks the rest of the match. Values stop at
// quotes and backslashes so JSON output stays well formed.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password\s*[=:]\s*|password"\s*:\s*")[^\s,}\]"\\]+`),
	regexp.MustCompile(`(?i)(token\s*[=:]\s*|token"\s*:\s*")[^\s,}\]"\\]+`),
	regexp.MustCompile(`(?i)(authenticate/)[0-9a-f]+`),
	regexp.MustCompile(`(?i)(jdev/sys/enc/)[^\s"\\]+`),
	regexp.MustCompile(`(?i)(keyexchange/)[^\s"\\]+`),
}

// Redact masks passwords, tokens, login hashes and encrypted commands in s.
func Redact(s []byte) []byte {
	for _, re := range sensitivePatterns {
		s = re.ReplaceAll(s, []byte("${1}"+redacted))
	}

	return s
}

type redactingWriter struct {
	next zerolog.LevelWriter
}

// NewRedactingWriter wraps w so every log line passes through Redact.
func NewRedactingWriter(w io.Writer) zerolog.LevelWriter {
	lw, ok := w.(zerolog.LevelWriter)
	if !ok {
		lw = zerolog.LevelWriterAdapter{Writer: w}
	}

	return &redactingWriter{next: lw}
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.next.Write(Redact(p)); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *redactingWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if _, err := w.next.WriteLevel(level, Redact(p)); err != nil {
		return 0, err
	}

	return len(p), nil
}
