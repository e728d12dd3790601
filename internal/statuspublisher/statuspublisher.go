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

// Package statuspublisher implements the debounced, retry-capable gateway
// status publisher of spec §4.8: bursts of updates coalesce into one
// publish, unchanged documents are suppressed, partial reads are retried
// with backoff before publishing anyway, and a backup emission heals
// silently lost retained state.
//
// The debounce-then-publish shape (a pending flag plus a single-shot timer,
// reset only on transition from idle) is grounded on the teacher's
// notify.Notifier/Receiver pair in cdc/sink/mq.go, which coalesces repeated
// flush requests into one encoder pass the same way.
package statuspublisher

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/go-cmp/cmp"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

const (
	aggregateDelay = 500 * time.Millisecond
	backupDelay    = time.Hour
	maxRetries     = 5
)

// Publisher is the subset of *mqtttransport.Transport this package needs.
type Publisher interface {
	Enqueue(topic string, payload []byte, qos byte, retain bool)
}

// Info is the gateway identity embedded in every status document.
type Info struct {
	GatewayID string
	Model     string
	Version   string
}

// StatusPublisher owns the single retained status document for one gateway.
type StatusPublisher struct {
	codec     *codec.Codec
	sinks     *sinkmanager.Manager
	transport Publisher
	info      Info

	online atomic.Bool

	nudgeCh chan struct{}
	stop    chan struct{}
	done    chan struct{}

	mu            sync.Mutex
	lastPublished *types.GatewayStatus
	lastSinkCfg   map[string]types.SinkConfiguration
}

// New builds a StatusPublisher. Call Run to start its loop.
func New(c *codec.Codec, sinks *sinkmanager.Manager, transport Publisher, info Info) *StatusPublisher {
	return &StatusPublisher{
		codec:       c,
		sinks:       sinks,
		transport:   transport,
		info:        info,
		nudgeCh:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		lastSinkCfg: make(map[string]types.SinkConfiguration),
	}
}

// SetOnline updates the connection flag embedded in the status document and
// nudges a republish, used by the MQTT transport's connect/disconnect
// handlers.
func (p *StatusPublisher) SetOnline(online bool) {
	p.online.Store(online)
	p.Nudge()
}

// Nudge records that something observable may have changed. It is cheap and
// safe to call from any goroutine (spec §4.7's dispatcher nudges, §4.4's
// sink lifecycle callbacks).
func (p *StatusPublisher) Nudge() {
	select {
	case p.nudgeCh <- struct{}{}:
	default:
	}
}

// Run drives the debounce/backup/retry state machine until ctx is done.
func (p *StatusPublisher) Run(ctx context.Context) {
	defer close(p.done)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	pending := false

	backup := time.NewTimer(backupDelay)
	defer backup.Stop()

	retry := time.NewTimer(time.Hour)
	retry.Stop()
	retryAttempt := 0
	retryArmed := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-p.nudgeCh:
			if !pending {
				pending = true
				debounce.Reset(aggregateDelay)
			}
		case <-debounce.C:
			pending = false
			if p.attemptPublish(ctx, false) {
				retryAttempt = 0
				retryArmed = false
				retry.Stop()
				backup.Reset(backupDelay)
			} else {
				retryAttempt++
				if retryAttempt > maxRetries {
					p.attemptPublish(ctx, true)
					retryAttempt = 0
					retryArmed = false
					backup.Reset(backupDelay)
				} else {
					retryArmed = true
					retry.Reset(retryBackoff(retryAttempt - 1))
				}
			}
		case <-retry.C:
			if !retryArmed {
				continue
			}
			if p.attemptPublish(ctx, false) {
				retryAttempt = 0
				retryArmed = false
				backup.Reset(backupDelay)
			} else {
				retryAttempt++
				if retryAttempt > maxRetries {
					p.attemptPublish(ctx, true)
					retryAttempt = 0
					retryArmed = false
					backup.Reset(backupDelay)
				} else {
					retry.Reset(retryBackoff(retryAttempt - 1))
				}
			}
		case <-backup.C:
			p.attemptPublish(ctx, true)
			backup.Reset(backupDelay)
		}
	}
}

// Stop requests the loop to exit; it does not wait for it.
func (p *StatusPublisher) Stop() {
	close(p.stop)
}

// Done is closed once Run has returned.
func (p *StatusPublisher) Done() <-chan struct{} {
	return p.done
}

// retryBackoff returns the delay before partial-read retry number attempt+1
// (attempt counts from 0): 1, 2, 4, 8, 16s. cenkalti/backoff's
// ExponentialBackOff with a 1s initial interval, multiplier 2 and no
// randomization produces exactly this sequence, so the library is used as
// the schedule generator rather than hand-rolling it.
func retryBackoff(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         16 * time.Second,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// attemptPublish builds the current status document, retries on partial
// reads (handled by the caller's state machine), and publishes if the
// document changed or force is set. It returns false only when a read was
// partial and force is not set; otherwise it returns true.
func (p *StatusPublisher) attemptPublish(ctx context.Context, force bool) bool {
	sinks := p.sinks.GetSinks()
	sinkDocs := make(map[string]types.SinkConfiguration, len(sinks))
	anyPartial := false
	changedSinks := make(map[string]types.SinkConfiguration)

	p.mu.Lock()
	for _, s := range sinks {
		cfg, partial := s.ReadConfig(ctx)
		if partial {
			anyPartial = true
		}
		sinkDocs[s.Name()] = cfg
		if prev, ok := p.lastSinkCfg[s.Name()]; !ok || !cmp.Equal(prev, cfg) {
			changedSinks[s.Name()] = cfg
		}
	}
	p.mu.Unlock()

	if anyPartial && !force {
		return false
	}
	if anyPartial {
		log.Error("publishing gateway status with partial sink reads after retry budget exhausted",
			zap.Int("sinks", len(sinks)))
	}

	status := types.GatewayStatus{
		GatewayID: p.info.GatewayID,
		Model:     p.info.Model,
		Version:   p.info.Version,
		Online:    p.online.Load(),
		Sinks:     sinkDocs,
	}

	p.mu.Lock()
	unchanged := !force && p.lastPublished != nil && cmp.Equal(*p.lastPublished, status)
	p.mu.Unlock()
	if unchanged {
		return true
	}

	payload := p.codec.EncodeStatusEvent(codec.StatusFromGatewayStatus(status))
	topic := codec.GenerateTopic(codec.KindStatusEvent, codec.TopicParams{GatewayID: p.info.GatewayID})
	p.transport.Enqueue(topic, payload, 1, true)

	p.mu.Lock()
	cp := status.Clone()
	p.lastPublished = &cp
	for name, cfg := range changedSinks {
		p.lastSinkCfg[name] = cfg
	}
	p.mu.Unlock()

	p.emitCompat(status, changedSinks)
	return true
}

// emitCompat mirrors the just-published status as the legacy req_id=0
// get_configs/set_config responses (spec §4.8's compatibility side-channel).
// Suppression is per-sink: only sinks whose configuration actually changed
// receive the set_config echo.
func (p *StatusPublisher) emitCompat(status types.GatewayStatus, changedSinks map[string]types.SinkConfiguration) {
	getConfigs := codec.GetConfigsResponse{ReqID: 0, Sinks: status.Sinks}
	topic := codec.GenerateTopic(codec.KindResponseGetConfigs, codec.TopicParams{GatewayID: p.info.GatewayID})
	p.transport.Enqueue(topic, p.codec.EncodeGetConfigsResponse(getConfigs), 2, false)

	for name, cfg := range changedSinks {
		resp := codec.SetConfigResponse{ReqID: 0, SinkID: name, Res: types.ResOK, Config: cfg}
		t := codec.GenerateTopic(codec.KindResponseSetConfig, codec.TopicParams{GatewayID: p.info.GatewayID, SinkID: name})
		p.transport.Enqueue(t, p.codec.EncodeSetConfigResponse(resp), 2, false)
	}
}
