// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package broadcast

import (
	"context"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/sinkmanager"
)

const (
	rtcSourceEndpoint = 78
	rtcDestEndpoint   = 79
)

// TimeSource yields the current wall-clock time for the RTC broadcaster.
// Spec §4.10 names two modes: the local clock, and an NTP query; both are
// expressed as this one interface so the broadcaster doesn't care which is
// wired in (see SPEC_FULL.md/DESIGN.md Open Question 2).
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

// LocalClock is the trivial TimeSource backed by the host clock.
type LocalClock struct{}

func (LocalClock) Now(context.Context) (time.Time, error) { return time.Now(), nil }

// RTCConfig configures the RTC broadcaster.
type RTCConfig struct {
	Period            time.Duration
	TimezoneOffsetS   int32
	RetryPeriod       time.Duration // sleep before retrying after a sourcing failure or empty sink set
}

// RTCBroadcaster periodically injects the current time into every sink
// (spec §4.10).
type RTCBroadcaster struct {
	sinks  *sinkmanager.Manager
	source TimeSource
	cfg    RTCConfig

	stop chan struct{}
	done chan struct{}
}

// NewRTC builds an RTCBroadcaster. A zero RetryPeriod defaults to a quarter
// of Period (capped at 30s); the source material leaves the exact retry
// cadence unspecified, only that it is "a shorter retry period" (spec
// §4.10).
func NewRTC(sinks *sinkmanager.Manager, source TimeSource, cfg RTCConfig) *RTCBroadcaster {
	if cfg.RetryPeriod <= 0 {
		cfg.RetryPeriod = cfg.Period / 4
		if cfg.RetryPeriod > 30*time.Second || cfg.RetryPeriod == 0 {
			cfg.RetryPeriod = 30 * time.Second
		}
	}
	return &RTCBroadcaster{sinks: sinks, source: source, cfg: cfg, stop: make(chan struct{}), done: make(chan struct{})}
}

// Run broadcasts until ctx is done, compensating each period by the time
// spent sending so emission stays quasi-periodic (spec §4.10).
func (b *RTCBroadcaster) Run(ctx context.Context) {
	defer close(b.done)

	for {
		start := time.Now()
		wait := b.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-time.After(wait - time.Since(start)):
		}
	}
}

func (b *RTCBroadcaster) cycle(ctx context.Context) time.Duration {
	sinks := b.sinks.GetSinks()
	if len(sinks) == 0 {
		return b.cfg.RetryPeriod
	}

	now, err := b.source.Now(ctx)
	if err != nil {
		log.Warn("rtc time source failed, retrying shortly", zap.Error(err))
		return b.cfg.RetryPeriod
	}

	payload := encodeRTC(uint64(now.UnixMilli()), b.cfg.TimezoneOffsetS)
	for _, s := range sinks {
		if res := s.Send(ctx, BroadcastDest, rtcSourceEndpoint, rtcDestEndpoint, 0, 0, false, 0, payload); res != 0 {
			log.Warn("rtc broadcast send failed", zap.String("sink", s.Name()), zap.Stringer("result", res))
		}
	}
	return b.cfg.Period
}

// Stop requests the loop to exit; it does not wait for it.
func (b *RTCBroadcaster) Stop() { close(b.stop) }

// Done is closed once Run has returned.
func (b *RTCBroadcaster) Done() <-chan struct{} { return b.done }
