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

package sink

import (
	"context"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/types"
)

// WriteConfig applies every writable key present in patch. If the stack is
// currently running it is stopped first, attributes are set one at a time,
// app-config is written after role keys (setting it on a non-sink role is
// invalid per spec §4.3), and the stack is finally left started iff
// patch.Started says so (or, if Started is absent, left as it was found).
// The first non-OK GatewayResultCode among the individual writes (see
// types.Worse) is returned, or ResOK if every write succeeded.
func (s *Sink) WriteConfig(ctx context.Context, patch types.SinkConfiguration) types.GatewayResultCode {
	name := s.identity.Name
	worst := types.ResOK

	wasStarted, err := s.bus.ReadAttribute(ctx, name, sinkbus.AttrStarted)
	if err != nil {
		log.Warn("could not read stack state before write", zap.String("sink", name), zap.Error(err))
	}
	priorStarted, _ := wasStarted.(bool)

	if priorStarted {
		if err := s.bus.SetStackState(ctx, name, false); err != nil {
			worst = types.Worse(worst, mapBusError(err))
		}
	}

	type write struct {
		attr  sinkbus.Attribute
		value interface{}
		ok    bool
	}
	writes := []write{
		{sinkbus.AttrNodeAddress, derefU32(patch.NodeAddress), patch.NodeAddress != nil},
		{sinkbus.AttrNodeRole, derefRole(patch.NodeRole), patch.NodeRole != nil},
		{sinkbus.AttrNetworkAddress, derefU32(patch.NetworkAddress), patch.NetworkAddress != nil},
		{sinkbus.AttrNetworkChannel, derefU8(patch.NetworkChannel), patch.NetworkChannel != nil},
		{sinkbus.AttrChannelMap, derefU32(patch.ChannelMap), patch.ChannelMap != nil},
		{sinkbus.AttrAuthenticationKey, patch.AuthenticationKey, len(patch.AuthenticationKey) > 0},
		{sinkbus.AttrCipherKey, patch.CipherKey, len(patch.CipherKey) > 0},
	}
	for _, w := range writes {
		if !w.ok {
			continue
		}
		if err := s.bus.WriteAttribute(ctx, name, w.attr, w.value); err != nil {
			worst = types.Worse(worst, mapBusError(err))
		}
	}

	if patch.AppConfigSeq != nil || patch.AppConfigDiag != nil || patch.AppConfigData != nil {
		seq, diag, data, _ := s.bus.GetAppConfig(ctx, name)
		if patch.AppConfigSeq != nil {
			seq = *patch.AppConfigSeq
		}
		if patch.AppConfigDiag != nil {
			diag = *patch.AppConfigDiag
		}
		if patch.AppConfigData != nil {
			data = patch.AppConfigData
		}
		if err := s.bus.SetAppConfig(ctx, name, seq, diag, data); err != nil {
			worst = types.Worse(worst, mapBusError(err))
		}
	}

	finalStarted := priorStarted
	if patch.Started != nil {
		finalStarted = *patch.Started
	}
	if err := s.bus.SetStackState(ctx, name, finalStarted); err != nil {
		worst = types.Worse(worst, mapBusError(err))
	}

	if v, err := s.bus.ReadAttribute(ctx, name, sinkbus.AttrNetworkAddress); err == nil && v != nil {
		na := v.(uint32)
		s.mu.Lock()
		s.cache.NetworkAddress = &na
		s.mu.Unlock()
	}

	return worst
}

func derefU32(p *uint32) interface{} {
	if p == nil {
		return uint32(0)
	}
	return *p
}

func derefU8(p *uint8) interface{} {
	if p == nil {
		return uint8(0)
	}
	return *p
}

func derefRole(p *types.NodeRole) interface{} {
	if p == nil {
		return types.NodeRole{}
	}
	return *p
}

// Send transmits payload downlink, enforcing the hop-limit invariant and
// masking dst to 32 bits before it ever reaches the bus (spec §4.3).
func (s *Sink) Send(ctx context.Context, dst uint32, srcEp, dstEp uint8, qos uint8, initialDelayMS uint32, unackCSMA bool, hopLimit uint8, payload []byte) types.GatewayResultCode {
	if hopLimit > 15 {
		return types.ResInvalidMaxHopCount
	}
	dst &= 0xFFFFFFFF
	err := s.bus.SendMessage(ctx, s.identity.Name, dst, srcEp, dstEp, qos, initialDelayMS, unackCSMA, hopLimit, payload)
	return mapBusError(err)
}

// localError wraps a GatewayResultCode as an error value. SetCost does not
// use it: its local validation failures (ResInvalidParam, ResInvalidRole)
// are returned as plain result codes without a bus round-trip.
type localError struct{ code types.GatewayResultCode }

func (e *localError) Error() string { return e.code.String() }

// SetCost sets the sink's advertised radio cost. v must be in [0,254];
// out-of-range values fail locally without a bus round-trip.
func (s *Sink) SetCost(ctx context.Context, v int) types.GatewayResultCode {
	if v < 0 || v > 254 {
		return types.ResInvalidParam
	}
	role, err := s.bus.ReadAttribute(ctx, s.identity.Name, sinkbus.AttrNodeRole)
	if err == nil && role != nil {
		if r, ok := role.(types.NodeRole); ok && !isSinkRole(r) {
			return types.ResInvalidRole
		}
	}
	werr := s.bus.WriteAttribute(ctx, s.identity.Name, sinkbus.AttrCost, uint8(v))
	return mapBusError(werr)
}

// isSinkRole reports whether the base role bits identify a sink (as opposed
// to a node/router/subnode). The concrete role-bit encoding is owned by the
// bus binding; here only the "is this a sink at all" question is asked.
func isSinkRole(r types.NodeRole) bool {
	const sinkRoleBase = 0x08
	return r.Base&sinkRoleBase != 0
}
