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

package statuspublisher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/statuspublisher"
)

type recordingPublisher struct {
	mu    sync.Mutex
	count map[string]int
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{count: make(map[string]int)}
}

func (r *recordingPublisher) Enqueue(topic string, _ []byte, _ byte, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count[topic]++
}

func (r *recordingPublisher) statusCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count["gw-event/status/gw-1"]
}

func TestStatusPublisher_CoalescesBurstIntoOnePublish(t *testing.T) {
	pub := newRecordingPublisher()
	c := codec.New()
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})

	sp := statuspublisher.New(c, sinks, pub, statuspublisher.Info{GatewayID: "gw-1", Model: "m", Version: "v"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sp.Run(ctx)

	sp.Nudge()
	time.Sleep(50 * time.Millisecond)
	sp.Nudge()

	require.Eventually(t, func() bool { return pub.statusCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 1, pub.statusCount())
}

func TestStatusPublisher_SuppressesUnchangedRepublish(t *testing.T) {
	pub := newRecordingPublisher()
	c := codec.New()
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})

	sp := statuspublisher.New(c, sinks, pub, statuspublisher.Info{GatewayID: "gw-1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sp.Run(ctx)

	sp.Nudge()
	require.Eventually(t, func() bool { return pub.statusCount() == 1 }, time.Second, 10*time.Millisecond)

	sp.Nudge()
	time.Sleep(700 * time.Millisecond)
	require.Equal(t, 1, pub.statusCount())
}
