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

package sink_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/types"
)

func TestSend_HopLimitGuard(t *testing.T) {
	bus := sinkbus.NewFake()
	bus.AddSink("sink0", "owner0")
	s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)

	res := s.Send(context.Background(), 1, 1, 1, 0, 0, false, 16, []byte{0xAA})
	require.Equal(t, types.ResInvalidMaxHopCount, res)
}

func TestSend_OK(t *testing.T) {
	bus := sinkbus.NewFake()
	bus.AddSink("sink0", "owner0")
	s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)

	res := s.Send(context.Background(), 1, 1, 1, 0, 0, false, 10, []byte{0xAA})
	require.Equal(t, types.ResOK, res)
}

func TestBusCodeMapping(t *testing.T) {
	cases := []struct {
		code int
		want types.GatewayResultCode
	}{
		{0, types.ResOK},
		{1, types.ResInvalidSinkState},
		{2, types.ResInvalidSinkState},
		{3, types.ResInvalidSinkState},
		{4, types.ResInvalidParam},
		{9, types.ResInvalidSinkState},
		{10, types.ResInvalidRole},
		{11, types.ResInvalidDestAddress},
		{16, types.ResAccessDenied},
		{17, types.ResInvalidDataPayload},
		{19, types.ResNoScratchpadPresent},
		{22, types.ResInvalidDiagInterval},
		{23, types.ResInvalidSequenceNumber},
		{26, types.ResInvalidScratchpad},
		{27, types.ResInvalidRebootDelay},
		{999, types.ResInternalError},
	}

	for _, c := range cases {
		bus := sinkbus.NewFake()
		bus.AddSink("sink0", "owner0")
		bus.FailNextCall["sink0:send"] = c.code
		s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)

		got := s.Send(context.Background(), 1, 1, 1, 0, 0, false, 1, nil)
		require.Equalf(t, c.want, got, "bus code %d", c.code)
	}
}

func TestReadConfig_PartialFallsBackToCache(t *testing.T) {
	bus := sinkbus.NewFake()
	bus.AddSink("sink0", "owner0")
	s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)

	cfg, partial := s.ReadConfig(context.Background())
	require.False(t, partial)
	require.NotNil(t, cfg.Started)
	require.False(t, *cfg.Started)

	bus.FailNextCall["sink0:read"] = 1
	cfg2, partial2 := s.ReadConfig(context.Background())
	require.True(t, partial2)
	// Started was the first read attempted and so is the one to fail;
	// the cached value from the first read should still be present.
	require.NotNil(t, cfg2.Started)
}

// TestSetCost_DoesNotClobberChannelMap guards against cost writes aliasing
// the separate channel_map attribute (spec §3 treats radio cost and
// channel_map as distinct sink attributes).
func TestSetCost_DoesNotClobberChannelMap(t *testing.T) {
	bus := sinkbus.NewFake()
	bus.AddSink("sink0", "owner0")
	require.NoError(t, bus.WriteAttribute(context.Background(), "sink0", sinkbus.AttrChannelMap, uint32(0xDEADBEEF)))
	require.NoError(t, bus.WriteAttribute(context.Background(), "sink0", sinkbus.AttrNodeRole, types.NodeRole{Base: 0x08}))

	s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)
	res := s.SetCost(context.Background(), 42)
	require.Equal(t, types.ResOK, res)

	cm, err := bus.ReadAttribute(context.Background(), "sink0", sinkbus.AttrChannelMap)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), cm)

	cost, err := bus.ReadAttribute(context.Background(), "sink0", sinkbus.AttrCost)
	require.NoError(t, err)
	require.Equal(t, uint8(42), cost)
}

func TestUploadScratchpad_ClearsOnEmptyBlob(t *testing.T) {
	bus := sinkbus.NewFake()
	bus.AddSink("sink0", "owner0")
	s := sink.New(types.SinkIdentity{Name: "sink0", Owner: "owner0"}, bus)

	res := s.UploadScratchpad(context.Background(), 0, []byte{1, 2, 3})
	require.Equal(t, types.ResOK, res)

	status, code := s.ScratchpadStatus(context.Background())
	require.Equal(t, types.ResOK, code)
	require.EqualValues(t, 3, status.Stored.Len)

	res = s.UploadScratchpad(context.Background(), 0, nil)
	require.Equal(t, types.ResOK, res)
	status, _ = s.ScratchpadStatus(context.Background())
	require.EqualValues(t, 0, status.Stored.Len)
}
