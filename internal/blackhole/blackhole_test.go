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

package blackhole_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/blackhole"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
)

type fakeObserver struct {
	queueSize int32
}

func (f *fakeObserver) QueueSize() int         { return int(atomic.LoadInt32(&f.queueSize)) }
func (f *fakeObserver) WaitingTimeS() float64  { return 0 }
func (f *fakeObserver) set(n int)              { atomic.StoreInt32(&f.queueSize, int32(n)) }

func TestMonitor_Hysteresis(t *testing.T) {
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})
	bus.AddSink("sink0", "owner0")

	obs := &fakeObserver{}
	m := blackhole.New(obs, sinks, blackhole.Config{MaxBufferedPackets: 5, MinimumSinkCost: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	obs.set(6)
	require.Eventually(t, func() bool { return m.State() == blackhole.Degraded }, 3*time.Second, 20*time.Millisecond)

	obs.set(0)
	require.Eventually(t, func() bool { return m.State() == blackhole.Healthy }, 3*time.Second, 20*time.Millisecond)
}

func TestMonitor_ZeroThresholdDisablesTrigger(t *testing.T) {
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})

	obs := &fakeObserver{}
	m := blackhole.New(obs, sinks, blackhole.Config{MaxBufferedPackets: 0, MinimumSinkCost: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	obs.set(1000)
	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, blackhole.Healthy, m.State())
}
