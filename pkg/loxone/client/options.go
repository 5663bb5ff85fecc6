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

package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StructureSource selects the channel the structure file is downloaded over.
type StructureSource string

const (
	StructureFromWebSocket StructureSource = "ws"
	StructureFromHTTP      StructureSource = "http"
)

const (
	defaultKeepaliveInterval = 30 * time.Second
	defaultWatchdogTimeout   = 60 * time.Second
	defaultDialTimeout       = 10 * time.Second
	defaultAuthTimeout       = 15 * time.Second
	defaultDiscoverTimeout   = 30 * time.Second
	defaultSubscribeTimeout  = 10 * time.Second
	defaultRefreshTimeout    = 15 * time.Second
	defaultBaseBackoff       = time.Second
	defaultMaxBackoff        = 30 * time.Second

	// unknownWarnInterval bounds how often unknown state ids are reported.
	unknownWarnInterval = time.Minute
)

// Options configures one Manager. Zero durations select the defaults.
type Options struct {
	Name     string
	Username string
	Password string

	StructureSource StructureSource

	KeepaliveInterval time.Duration
	WatchdogTimeout   time.Duration
	DialTimeout       time.Duration
	AuthTimeout       time.Duration
	DiscoverTimeout   time.Duration
	SubscribeTimeout  time.Duration
	RefreshTimeout    time.Duration
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
}

func (o *Options) applyDefaults() {
	if o.StructureSource == "" {
		o.StructureSource = StructureFromWebSocket
	}

	defaults := []struct {
		field *time.Duration
		value time.Duration
	}{
		{&o.KeepaliveInterval, defaultKeepaliveInterval},
		{&o.WatchdogTimeout, defaultWatchdogTimeout},
		{&o.DialTimeout, defaultDialTimeout},
		{&o.AuthTimeout, defaultAuthTimeout},
		{&o.DiscoverTimeout, defaultDiscoverTimeout},
		{&o.SubscribeTimeout, defaultSubscribeTimeout},
		{&o.RefreshTimeout, defaultRefreshTimeout},
		{&o.BaseBackoff, defaultBaseBackoff},
		{&o.MaxBackoff, defaultMaxBackoff},
	}

	for _, d := range defaults {
		if *d.field <= 0 {
			*d.field = d.value
		}
	}
}

// newBackOff builds a jitter-free schedule starting at initial and doubling
// up to maxDelay.
func newBackOff(initial, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxDelay
	b.Reset()

	return b
}

// BackoffDelay returns the wait after the n-th consecutive failure:
// base * 2^n, capped at maxDelay.
func BackoffDelay(n int, base, maxDelay time.Duration) time.Duration {
	b := newBackOff(base, maxDelay)

	d := b.NextBackOff()
	for i := 0; i < n && d < maxDelay; i++ {
		d = b.NextBackOff()
	}

	return d
}
