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
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	otellog "go.opentelemetry.io/otel/log"
)

// maxAttributeLength bounds string attributes, including JSON-encoded
// nested values.
const maxAttributeLength = 4096

// OTelWriter turns zerolog JSON lines into OTLP log records. The component
// field selects the instrumentation scope.
type OTelWriter struct {
	ctx      context.Context
	provider otellog.LoggerProvider

	mu     sync.Mutex
	scopes map[string]otellog.Logger
}

func newOTelWriter(ctx context.Context, provider otellog.LoggerProvider) *OTelWriter {
	return &OTelWriter{
		ctx:      ctx,
		provider: provider,
		scopes:   make(map[string]otellog.Logger),
	}
}

// Write never fails; lines that are not JSON objects are dropped.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}

	var record otellog.Record

	now := time.Now()
	record.SetObservedTimestamp(now)
	record.SetTimestamp(now)

	if ts, ok := fields[zerolog.TimestampFieldName].(string); ok {
		if parsed, err := time.Parse(zerolog.TimeFieldFormat, ts); err == nil {
			record.SetTimestamp(parsed)
		}
	}

	delete(fields, zerolog.TimestampFieldName)

	if level, ok := fields[zerolog.LevelFieldName].(string); ok {
		record.SetSeverity(severity(level))
		record.SetSeverityText(level)
		delete(fields, zerolog.LevelFieldName)
	}

	if msg, ok := fields[zerolog.MessageFieldName].(string); ok {
		record.SetBody(otellog.StringValue(msg))
		delete(fields, zerolog.MessageFieldName)
	}

	scope := defaultServiceName
	if component, ok := fields["component"].(string); ok && component != "" {
		scope = component
		delete(fields, "component")
	}

	for key, value := range fields {
		if kv, ok := attribute(key, value); ok {
			record.AddAttributes(kv)
		}
	}

	w.logger(scope).Emit(w.ctx, record)

	return len(p), nil
}

func (w *OTelWriter) logger(scope string) otellog.Logger {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.scopes[scope]
	if !ok {
		l = w.provider.Logger(scope)
		w.scopes[scope] = l
	}

	return l
}

// WriteLevel implements zerolog.LevelWriter.
func (w *OTelWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return w.Write(p)
}

// attribute converts one decoded JSON field. Integral numbers become Int64;
// arrays and objects are re-encoded as JSON strings.
func attribute(key string, value interface{}) (otellog.KeyValue, bool) {
	switch v := value.(type) {
	case nil:
		return otellog.KeyValue{}, false
	case string:
		return otellog.String(key, truncate(v)), true
	case bool:
		return otellog.Bool(key, v), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return otellog.Int64(key, int64(v)), true
		}

		return otellog.Float64(key, v), true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return otellog.KeyValue{}, false
		}

		return otellog.String(key, truncate(string(encoded))), true
	}
}

func truncate(s string) string {
	if len(s) <= maxAttributeLength {
		return s
	}

	cut := s[:maxAttributeLength]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	return cut
}

func severity(level string) otellog.Severity {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return otellog.SeverityInfo
	}

	switch lvl {
	case zerolog.TraceLevel:
		return otellog.SeverityTrace
	case zerolog.DebugLevel:
		return otellog.SeverityDebug
	case zerolog.WarnLevel:
		return otellog.SeverityWarn
	case zerolog.ErrorLevel:
		return otellog.SeverityError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityInfo
	}
}
