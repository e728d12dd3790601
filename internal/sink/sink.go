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

// Package sink implements the per-sink facade (spec §4.3): cached
// configuration reads, safe config writes that stop/apply/restart the
// stack as needed, message sends, cost control, and scratchpad (OTAP)
// operations. Every bus error is converted to a types.GatewayResultCode
// at this boundary; callers never see a raw sinkbus error.
package sink

import (
	"context"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/types"
)

// Sink is the facade spec §3/§4.3 describes: identity, a bus proxy
// reference, and a last-known-good configuration cache. It is not itself
// mutex-free the way the original Python object is "mutex-free" — proxy
// calls are serialized by the bus, but the cache needs its own lock since
// reads and writes race with lifecycle teardown.
type Sink struct {
	identity types.SinkIdentity
	bus      sinkbus.SinkProxy

	mu    sync.RWMutex
	cache types.SinkConfiguration
}

// New builds a Sink for a freshly appeared bus name/owner pair.
func New(identity types.SinkIdentity, bus sinkbus.SinkProxy) *Sink {
	return &Sink{identity: identity, bus: bus}
}

func (s *Sink) Identity() types.SinkIdentity {
	return s.identity
}

func (s *Sink) Name() string {
	return s.identity.Name
}

type attrRead struct {
	attr   sinkbus.Attribute
	assign func(v interface{})
}

// ReadConfig performs a best-effort read of every known attribute, plus the
// scratchpad status (and target-scratchpad, on recent-enough firmware). Any
// failed read sets partial. An attribute whose read fails keeps its cached
// value if one exists, and is omitted from the result otherwise. On
// return the cache is atomically replaced with whatever was freshly read,
// layered over the previous cache so omitted attributes survive.
func (s *Sink) ReadConfig(ctx context.Context) (types.SinkConfiguration, bool) {
	s.mu.RLock()
	next := s.cache.Clone()
	s.mu.RUnlock()

	partial := false
	name := s.identity.Name

	readBool := func(attr sinkbus.Attribute, assign func(b bool)) {
		v, err := s.bus.ReadAttribute(ctx, name, attr)
		if err != nil {
			log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
			partial = true
			return
		}
		if v == nil {
			return
		}
		assign(v.(bool))
	}
	readU8 := func(attr sinkbus.Attribute, assign func(u uint8)) {
		v, err := s.bus.ReadAttribute(ctx, name, attr)
		if err != nil {
			log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
			partial = true
			return
		}
		if v == nil {
			return
		}
		assign(v.(uint8))
	}
	readU16 := func(attr sinkbus.Attribute, assign func(u uint16)) {
		v, err := s.bus.ReadAttribute(ctx, name, attr)
		if err != nil {
			log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
			partial = true
			return
		}
		if v == nil {
			return
		}
		assign(v.(uint16))
	}
	readU32 := func(attr sinkbus.Attribute, assign func(u uint32)) {
		v, err := s.bus.ReadAttribute(ctx, name, attr)
		if err != nil {
			log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
			partial = true
			return
		}
		if v == nil {
			return
		}
		assign(v.(uint32))
	}

	readBool(sinkbus.AttrStarted, func(b bool) { next.Started = &b })
	readU32(sinkbus.AttrNodeAddress, func(u uint32) { next.NodeAddress = &u })
	readU32(sinkbus.AttrNetworkAddress, func(u uint32) { next.NetworkAddress = &u })
	readU8(sinkbus.AttrNetworkChannel, func(u uint8) { next.NetworkChannel = &u })
	readU32(sinkbus.AttrChannelMap, func(u uint32) { next.ChannelMap = &u })
	readBool(sinkbus.AttrAreKeysSet, func(b bool) { next.AreKeysSet = &b })
	readU8(sinkbus.AttrAppConfigSeq, func(u uint8) { next.AppConfigSeq = &u })
	readU16(sinkbus.AttrAppConfigDiag, func(u uint16) { next.AppConfigDiag = &u })

	if v, err := s.bus.ReadAttribute(ctx, name, sinkbus.AttrAppConfigData); err != nil {
		log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
		partial = true
	} else if v != nil {
		next.AppConfigData = v.([]byte)
	}

	if v, err := s.bus.ReadAttribute(ctx, name, sinkbus.AttrNodeRole); err != nil {
		log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
		partial = true
	} else if v != nil {
		role := v.(types.NodeRole)
		next.NodeRole = &role
	}

	if v, err := s.bus.ReadAttribute(ctx, name, sinkbus.AttrFirmwareVersion); err != nil {
		log.Warn("sink attribute read failed", zap.String("sink", name), zap.Error(err))
		partial = true
	} else if v != nil {
		fw := v.([4]uint8)
		next.FirmwareVersion = &fw
	}

	stored, processed, err := s.bus.GetScratchpadStatus(ctx, name)
	if err != nil {
		log.Warn("scratchpad status read failed", zap.String("sink", name), zap.Error(err))
		partial = true
	} else {
		sp := &types.ScratchpadStatus{
			Stored: types.StoredScratchpad{
				Seq:    stored.Seq,
				CRC:    stored.CRC,
				Len:    stored.Len,
				Status: types.ScratchpadResult(stored.Status),
				Type:   types.ScratchpadType(stored.Type),
			},
			Processed: types.ProcessedScratchpad(processed),
		}
		if next.FirmwareVersion != nil && firmwareAbove5(*next.FirmwareVersion) {
			target, present, terr := s.bus.GetTargetScratchpad(ctx, name)
			if terr != nil {
				log.Warn("target scratchpad read failed", zap.String("sink", name), zap.Error(terr))
				partial = true
			} else if present {
				sp.Target = &types.TargetScratchpad{
					Action:         types.ScratchpadAction(target.Action),
					TargetSequence: target.TargetSequence,
					TargetCRC:      target.TargetCRC,
					Param:          target.Param,
					Delay:          target.Delay,
				}
			}
		}
		next.Scratchpad = sp
	}

	s.mu.Lock()
	s.cache = next
	s.mu.Unlock()

	return next.Clone(), partial
}

// firmwareAbove5 reports whether the major.minor pair encoded in the first
// two bytes of the firmware version is strictly greater than 5.0.
func firmwareAbove5(fw [4]uint8) bool {
	major, minor := fw[0], fw[1]
	return major > 5 || (major == 5 && minor > 0)
}

// CachedConfig returns the last successfully merged configuration without
// touching the bus, used by the gateway's uplink path for the network
// address.
func (s *Sink) CachedConfig() types.SinkConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Clone()
}
