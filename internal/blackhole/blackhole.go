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

// Package blackhole implements the backpressure controller of spec §4.9: a
// two-state (Healthy/Degraded) monitor driven by the MQTT transport's
// queue_size/waiting_time_s observables, which raises every sink's radio
// cost (or stops its stack) while the gateway cannot drain to the broker.
//
// The state-machine shape (one enum field, ticked on a fixed interval,
// transitioning on a threshold crossing and fanning the new state out to
// every tracked peer) is grounded on cdc/replication/scheduler.go's
// workload-diff-then-apply loop, generalized from "diff table assignment"
// to "diff healthy/degraded and push the new sink cost".
package blackhole

import (
	"context"
	"time"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

// State is the monitor's two-value state machine (spec §4.9).
type State int

const (
	Healthy State = iota
	Degraded
)

func (s State) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "healthy"
}

// Observer is the subset of *mqtttransport.Transport the monitor polls.
type Observer interface {
	QueueSize() int
	WaitingTimeS() float64
}

// Config is the buffering surface of spec §6.
type Config struct {
	MaxBufferedPackets     int
	MaxDelayWithoutPublish time.Duration
	MinimumSinkCost        int
	StopStack              bool
}

// Monitor implements the Healthy/Degraded state machine.
type Monitor struct {
	observer Observer
	sinks    *sinkmanager.Manager
	cfg      Config

	state State

	stop chan struct{}
	done chan struct{}
}

// New builds a Monitor. Call Run to start its 1 s tick.
func New(observer Observer, sinks *sinkmanager.Manager, cfg Config) *Monitor {
	return &Monitor{
		observer: observer,
		sinks:    sinks,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run ticks every second until ctx is done, transitioning state and
// applying it to every sink on each crossing (spec §4.9).
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Stop requests the loop to exit; it does not wait for it.
func (m *Monitor) Stop() {
	close(m.stop)
}

// Done is closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// State reports the monitor's current state, used by tests.
func (m *Monitor) State() State {
	return m.state
}

func (m *Monitor) tick(ctx context.Context) {
	queueSize := m.observer.QueueSize()
	stuck := m.isStuck(queueSize)

	switch {
	case m.state == Healthy && stuck:
		m.state = Degraded
		log.Warn("black-hole detected, degrading sinks",
			zap.Int("queue_size", queueSize), zap.Float64("waiting_time_s", m.observer.WaitingTimeS()))
		m.applyToAll(ctx, Degraded)
	case m.state == Degraded && queueSize == 0:
		m.state = Healthy
		log.Info("mqtt queue drained, restoring sinks to healthy")
		m.applyToAll(ctx, Healthy)
	}
}

// isStuck reports whether either threshold is tripped. A threshold of zero
// disables that trigger (spec §4.9).
func (m *Monitor) isStuck(queueSize int) bool {
	if m.cfg.MaxBufferedPackets > 0 && queueSize > m.cfg.MaxBufferedPackets {
		return true
	}
	if m.cfg.MaxDelayWithoutPublish > 0 && m.observer.WaitingTimeS() > m.cfg.MaxDelayWithoutPublish.Seconds() {
		return true
	}
	return false
}

func (m *Monitor) applyToAll(ctx context.Context, state State) {
	for _, s := range m.sinks.GetSinks() {
		m.apply(ctx, s, state)
	}
}

func (m *Monitor) apply(ctx context.Context, s *sink.Sink, state State) {
	if m.cfg.StopStack {
		started := state == Healthy
		res := s.WriteConfig(ctx, types.SinkConfiguration{Started: &started})
		if res != types.ResOK {
			log.Warn("black-hole stack-state change failed", zap.String("sink", s.Name()), zap.Stringer("result", res))
		}
		return
	}

	cost := 254
	if state == Healthy {
		cost = m.cfg.MinimumSinkCost
	}
	if res := s.SetCost(ctx, cost); res != types.ResOK {
		log.Warn("black-hole cost change failed", zap.String("sink", s.Name()), zap.Stringer("result", res))
	}
}

// OnSinkAppeared applies the monitor's current state to a newly appeared
// sink: in Degraded/cost mode it inherits cost 254 immediately; in
// Degraded/stop_stack mode no change is made (spec §4.9 -- a freshly
// appeared sink already starts stopped-or-whatever the bus reports).
func (m *Monitor) OnSinkAppeared(ctx context.Context, s *sink.Sink) {
	if m.state == Degraded && !m.cfg.StopStack {
		m.apply(ctx, s, Degraded)
	}
}
