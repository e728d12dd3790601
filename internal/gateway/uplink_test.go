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

package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/broadcast"
	"github.com/wirepas/gateway-go/internal/config"
	"github.com/wirepas/gateway-go/internal/sinkbus"
)

func newTestGateway(t *testing.T) (*Gateway, *sinkbus.Fake) {
	t.Helper()
	bus := sinkbus.NewFake()
	cfg := &config.Config{}
	cfg.Gateway.GatewayID = "gw-test"
	cfg.Gateway.IgnoredEndpoints = "1"
	cfg.Gateway.WhitenedEndpoints = "2"

	g, err := New(cfg, bus, broadcast.LocalClock{})
	require.NoError(t, err)
	return g, bus
}

// TestOnUplink_IgnoredEndpointDrops covers spec §8 property: an ignored
// destination endpoint never reaches the queue.
func TestOnUplink_IgnoredEndpointDrops(t *testing.T) {
	g, _ := newTestGateway(t)
	g.onUplink(sinkbus.UplinkFrame{Owner: "owner1", DestEndpoint: 1, Payload: []byte("hello")})
	require.Equal(t, 0, g.transport.QueueSize())
}

// TestOnUplink_WhitenedEndpointPreservesSize covers spec §8 property 3:
// whitened endpoints forward size but elide payload.
func TestOnUplink_WhitenedEndpointPreservesSize(t *testing.T) {
	g, _ := newTestGateway(t)
	g.onUplink(sinkbus.UplinkFrame{Owner: "owner1", DestEndpoint: 2, Payload: []byte("hello world")})
	require.Equal(t, 1, g.transport.QueueSize())
}

// TestOnUplink_NormalEndpointForwardsPayload covers the non-filtered path.
func TestOnUplink_NormalEndpointForwardsPayload(t *testing.T) {
	g, _ := newTestGateway(t)
	g.onUplink(sinkbus.UplinkFrame{Owner: "owner1", DestEndpoint: 3, Payload: []byte("hello")})
	require.Equal(t, 1, g.transport.QueueSize())
}

// TestNextEventIDValue_Monotonic covers spec §3's event-id rule when
// debug.incr_data_event_id is enabled.
func TestNextEventIDValue_Monotonic(t *testing.T) {
	g, _ := newTestGateway(t)
	g.incrEventID = true
	require.Equal(t, uint64(0), g.nextEventIDValue())
	require.Equal(t, uint64(1), g.nextEventIDValue())
	require.Equal(t, uint64(2), g.nextEventIDValue())
}

// TestNew_RejectsOverlappingEndpointFilters covers spec §8 property
// 2 at the Gateway construction boundary.
func TestNew_RejectsOverlappingEndpointFilters(t *testing.T) {
	bus := sinkbus.NewFake()
	cfg := &config.Config{}
	cfg.Gateway.IgnoredEndpoints = "1,2"
	cfg.Gateway.WhitenedEndpoints = "2,3"
	_, err := New(cfg, bus, broadcast.LocalClock{})
	require.Error(t, err)
}
