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
	"github.com/rs/zerolog"
)

// Logger is the logging handle injected into every component.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	GetLevel() zerolog.Level
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

type instance struct {
	z    zerolog.Logger
	base zerolog.Level
}

// Wrap adapts a zerolog logger to Logger. SetDebug(false) returns to the
// level z had when wrapped or last set through SetLevel.
func Wrap(z zerolog.Logger) Logger {
	return &instance{z: z, base: z.GetLevel()}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return Wrap(zerolog.Nop())
}

// NewTestLogger is Nop under the name tests use.
func NewTestLogger() Logger {
	return Nop()
}

func (l *instance) Trace() *zerolog.Event { return l.z.Trace() }
func (l *instance) Debug() *zerolog.Event { return l.z.Debug() }
func (l *instance) Info() *zerolog.Event  { return l.z.Info() }
func (l *instance) Warn() *zerolog.Event  { return l.z.Warn() }
func (l *instance) Error() *zerolog.Event { return l.z.Error() }
func (l *instance) Fatal() *zerolog.Event { return l.z.Fatal() }
func (l *instance) Panic() *zerolog.Event { return l.z.Panic() }
func (l *instance) With() zerolog.Context { return l.z.With() }

func (l *instance) WithComponent(component string) zerolog.Logger {
	return l.z.With().Str("component", component).Logger()
}

func (l *instance) WithFields(fields map[string]interface{}) zerolog.Logger {
	return l.z.With().Fields(fields).Logger()
}

func (l *instance) GetLevel() zerolog.Level { return l.z.GetLevel() }

func (l *instance) SetLevel(level zerolog.Level) {
	l.base = level
	l.z = l.z.Level(level)
}

func (l *instance) SetDebug(debug bool) {
	if debug {
		l.z = l.z.Level(zerolog.DebugLevel)
		return
	}

	l.z = l.z.Level(l.base)
}
