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

// Package sinkmanager implements the live sink set (spec §4.4): it tracks
// sinks appearing and disappearing on the bus, keeps a stable owner->name
// index for attributing inbound uplink, and fans out lifecycle events to
// callers (the status publisher, the black-hole monitor).
//
// The name/owner bookkeeping is grounded on the build-a-map-then-diff shape
// of the teacher's scheduler (cdc/replication/scheduler.go getTableToCaptureMap):
// membership is recomputed from authoritative bus events rather than
// inferred, and callers read a snapshot rather than the live map.
package sinkmanager

import (
	"context"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/types"
)

// UnknownOwnerSentinel is returned by ResolveOwner when an owner id has no
// matching sink name (spec §4.4).
const UnknownOwnerSentinel = "unknown"

// OnSinkAdded/OnSinkRemoved let the rest of the gateway react to membership
// changes without polling GetSinks.
type Callbacks struct {
	OnSinkAdded        func(*sink.Sink)
	OnSinkRemoved      func(name string)
	OnSinkStackStarted func(name string)
	OnSinkStackStopped func(name string)
}

// Manager owns the authoritative name->Sink map and the owner->name index.
type Manager struct {
	bus       sinkbus.Bus
	callbacks Callbacks

	mu          sync.Mutex
	sinks       map[string]*sink.Sink
	ownerToName map[string]string
}

// New wires Manager to bus and starts listening for lifecycle events. It
// does not block; callers should keep the returned Manager alive for the
// gateway's lifetime. Manager has no Close method.
func New(ctx context.Context, bus sinkbus.Bus, cb Callbacks) *Manager {
	m := &Manager{
		bus:         bus,
		callbacks:   cb,
		sinks:       make(map[string]*sink.Sink),
		ownerToName: make(map[string]string),
	}

	bus.AttachLifecycle(sinkbus.LifecycleCallbacks{
		OnAppear:       func(name, owner string) { m.add(ctx, name, owner) },
		OnDisappear:    func(name string) { m.remove(name) },
		OnStackStarted: func(name string) { m.onStackStarted(name) },
		OnStackStopped: func(name string) { m.onStackStopped(name) },
	})

	return m
}

func (m *Manager) lock()   { m.mu.Lock() }
func (m *Manager) unlock() { m.mu.Unlock() }

// Bootstrap lists the sinks already present on the bus at startup and adds
// each of them, since AttachLifecycle only fires on future transitions.
func (m *Manager) Bootstrap(ctx context.Context) error {
	names, err := m.bus.ListSinks(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		m.add(ctx, name, name)
	}
	return nil
}

func (m *Manager) add(ctx context.Context, name, owner string) {
	m.lock()
	// Tie-break (spec §4.4): a reappearing name is treated as an atomic
	// remove-then-add, so stale state never straddles both generations.
	if existing, ok := m.sinks[name]; ok {
		delete(m.sinks, name)
		for o, n := range m.ownerToName {
			if n == name {
				delete(m.ownerToName, o)
			}
		}
		m.unlock()
		if m.callbacks.OnSinkRemoved != nil {
			m.callbacks.OnSinkRemoved(name)
		}
		_ = existing
		m.lock()
	}

	s := sink.New(types.SinkIdentity{Name: name, Owner: owner}, m.bus)
	m.sinks[name] = s
	m.ownerToName[owner] = name
	m.unlock()

	log.Info("sink appeared", zap.String("sink", name), zap.String("owner", owner))
	if m.callbacks.OnSinkAdded != nil {
		m.callbacks.OnSinkAdded(s)
	}
}

func (m *Manager) remove(name string) {
	m.lock()
	if _, ok := m.sinks[name]; !ok {
		m.unlock()
		return
	}
	delete(m.sinks, name)
	for o, n := range m.ownerToName {
		if n == name {
			delete(m.ownerToName, o)
		}
	}
	m.unlock()

	log.Info("sink disappeared", zap.String("sink", name))
	if m.callbacks.OnSinkRemoved != nil {
		m.callbacks.OnSinkRemoved(name)
	}
}

func (m *Manager) onStackStarted(name string) {
	if m.callbacks.OnSinkStackStarted != nil {
		m.callbacks.OnSinkStackStarted(name)
	}
}

func (m *Manager) onStackStopped(name string) {
	if m.callbacks.OnSinkStackStopped != nil {
		m.callbacks.OnSinkStackStopped(name)
	}
}

// GetSinks returns a mutation-safe snapshot of the live set.
func (m *Manager) GetSinks() []*sink.Sink {
	m.lock()
	defer m.unlock()
	out := make([]*sink.Sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		out = append(out, s)
	}
	return out
}

// GetSink looks up a sink by its stable name.
func (m *Manager) GetSink(name string) (*sink.Sink, bool) {
	m.lock()
	defer m.unlock()
	s, ok := m.sinks[name]
	return s, ok
}

// ResolveOwner translates a bus owner id to a stable sink name, returning
// UnknownOwnerSentinel and logging an error if the owner is not (or no
// longer) registered (spec §4.4).
func (m *Manager) ResolveOwner(owner string) string {
	m.lock()
	name, ok := m.ownerToName[owner]
	m.unlock()
	if !ok {
		log.Error("uplink from unknown bus owner", zap.String("owner", owner))
		return UnknownOwnerSentinel
	}
	return name
}
