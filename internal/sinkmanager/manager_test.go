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

package sinkmanager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
)

func TestAppearDisappear(t *testing.T) {
	bus := sinkbus.NewFake()
	var added []string
	var removed []string
	m := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{
		OnSinkAdded:   func(s *sink.Sink) { added = append(added, s.Name()) },
		OnSinkRemoved: func(name string) { removed = append(removed, name) },
	})

	bus.AddSink("sink0", "owner0")
	require.Equal(t, []string{"sink0"}, added)
	require.Equal(t, "sink0", m.ResolveOwner("owner0"))

	bus.RemoveSink("sink0")
	require.Equal(t, []string{"sink0"}, removed)
	_, ok := m.GetSink("sink0")
	require.False(t, ok)
}

func TestResolveOwner_Unknown(t *testing.T) {
	bus := sinkbus.NewFake()
	m := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})
	require.Equal(t, sinkmanager.UnknownOwnerSentinel, m.ResolveOwner("nope"))
}

func TestReappearIsAtomicRemoveThenAdd(t *testing.T) {
	bus := sinkbus.NewFake()
	var events []string
	m := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{
		OnSinkAdded:   func(s *sink.Sink) { events = append(events, "add:"+s.Name()) },
		OnSinkRemoved: func(name string) { events = append(events, "remove:"+name) },
	})

	bus.AddSink("sink0", "owner0")
	bus.AddSink("sink0", "owner1")

	require.Equal(t, []string{"add:sink0", "remove:sink0", "add:sink0"}, events)
	require.Equal(t, "sink0", m.ResolveOwner("owner1"))
	require.Equal(t, sinkmanager.UnknownOwnerSentinel, m.ResolveOwner("owner0"))
}
