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

	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

const (
	keepAliveSourceEndpoint = 67
	keepAliveDestEndpoint   = 67
	keepAliveMaxRetries     = 3
	keepAliveRetrySpacing   = time.Second
)

// ConnectionObserver reports whether the gateway currently has an MQTT
// session, embedded as status bit 0 of the keep-alive payload (spec §4.10).
type ConnectionObserver interface {
	Connected() bool
}

// KeepAliveConfig configures the keep-alive broadcaster.
type KeepAliveConfig struct {
	Period           time.Duration
	TimezoneOffsetMN int16
	ReconnectBurst   bool // opt-in per spec §9 Open Question 1
}

// KeepAliveBroadcaster periodically tells every sink the gateway is alive
// and reachable, retrying per-sink sends that fail (spec §4.10).
type KeepAliveBroadcaster struct {
	sinks  *sinkmanager.Manager
	source TimeSource
	conn   ConnectionObserver
	cfg    KeepAliveConfig

	burst chan struct{}

	stop chan struct{}
	done chan struct{}
}

// NewKeepAlive builds a KeepAliveBroadcaster.
func NewKeepAlive(sinks *sinkmanager.Manager, source TimeSource, conn ConnectionObserver, cfg KeepAliveConfig) *KeepAliveBroadcaster {
	return &KeepAliveBroadcaster{
		sinks:  sinks,
		source: source,
		conn:   conn,
		cfg:    cfg,
		burst:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// OnReconnect triggers an immediate out-of-schedule broadcast cycle if
// ReconnectBurst is enabled. The source material has two variants of this
// behavior and leaves the canonical one unspecified (spec §9 Open Question
// 1); this repository makes it opt-in via KeepAliveConfig.ReconnectBurst.
func (b *KeepAliveBroadcaster) OnReconnect() {
	if !b.cfg.ReconnectBurst {
		return
	}
	select {
	case b.burst <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx is done, compensating each period by the time
// spent sending (spec §4.10).
func (b *KeepAliveBroadcaster) Run(ctx context.Context) {
	defer close(b.done)

	for {
		start := time.Now()
		b.cycle(ctx)
		wait := b.cfg.Period - time.Since(start)

		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-b.burst:
		case <-time.After(wait):
		}
	}
}

func (b *KeepAliveBroadcaster) cycle(ctx context.Context) {
	now, err := b.source.Now(ctx)
	if err != nil {
		log.Warn("keep-alive time source failed", zap.Error(err))
		return
	}

	status := uint8(0)
	if b.conn.Connected() {
		status |= 1
	}
	payload := encodeKeepAlive(status, uint64(now.UnixMilli()), b.cfg.TimezoneOffsetMN, uint16(b.cfg.Period.Seconds()))

	for _, s := range b.sinks.GetSinks() {
		b.sendWithRetry(ctx, s, payload)
	}
}

// sendWithRetry attempts up to keepAliveMaxRetries sends, spaced 1s apart,
// moving on to the next sink once one succeeds or the budget is exhausted
// (spec §8 property 9).
func (b *KeepAliveBroadcaster) sendWithRetry(ctx context.Context, s *sink.Sink, payload []byte) {
	for attempt := 1; attempt <= keepAliveMaxRetries; attempt++ {
		res := s.Send(ctx, BroadcastDest, keepAliveSourceEndpoint, keepAliveDestEndpoint, 0, 0, false, 0, payload)
		if res == types.ResOK {
			return
		}
		log.Warn("keep-alive send failed, retrying", zap.String("sink", s.Name()), zap.Int("attempt", attempt), zap.Stringer("result", res))
		if attempt < keepAliveMaxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(keepAliveRetrySpacing):
			}
		}
	}
}

// Stop requests the loop to exit; it does not wait for it.
func (b *KeepAliveBroadcaster) Stop() { close(b.stop) }

// Done is closed once Run has returned.
func (b *KeepAliveBroadcaster) Done() <-chan struct{} { return b.done }
