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

// ScratchpadStatus returns the sink's current stored/processed scratchpad
// view without mutating stack state.
func (s *Sink) ScratchpadStatus(ctx context.Context) (types.ScratchpadStatus, types.GatewayResultCode) {
	stored, processed, err := s.bus.GetScratchpadStatus(ctx, s.identity.Name)
	if err != nil {
		return types.ScratchpadStatus{}, mapBusError(err)
	}
	return types.ScratchpadStatus{
		Stored: types.StoredScratchpad{
			Seq:    stored.Seq,
			CRC:    stored.CRC,
			Len:    stored.Len,
			Status: types.ScratchpadResult(stored.Status),
			Type:   types.ScratchpadType(stored.Type),
		},
		Processed: types.ProcessedScratchpad(processed),
	}, types.ResOK
}

// withStackStopped stops the stack (if running), runs fn, and restores the
// prior stack state on exit regardless of fn's outcome. This is the shared
// shape behind Upload and Process, both of which require a stopped stack
// (spec §4.3).
func (s *Sink) withStackStopped(ctx context.Context, fn func() types.GatewayResultCode) types.GatewayResultCode {
	name := s.identity.Name
	wasStarted, _ := s.bus.ReadAttribute(ctx, name, sinkbus.AttrStarted)
	priorStarted, _ := wasStarted.(bool)

	if priorStarted {
		if err := s.bus.SetStackState(ctx, name, false); err != nil {
			return mapBusError(err)
		}
	}

	result := fn()

	if priorStarted {
		if err := s.bus.SetStackState(ctx, name, true); err != nil {
			log.Error("failed to restore stack state after scratchpad op", zap.String("sink", name), zap.Error(err))
			if result == types.ResOK {
				result = mapBusError(err)
			}
		}
	}
	return result
}

// UploadScratchpad stores blob as the sink's pending scratchpad image. An
// empty blob means "clear local scratchpad" (spec §4.3).
func (s *Sink) UploadScratchpad(ctx context.Context, seq uint8, blob []byte) types.GatewayResultCode {
	return s.withStackStopped(ctx, func() types.GatewayResultCode {
		err := s.bus.UploadScratchpad(ctx, s.identity.Name, seq, blob)
		return mapBusError(err)
	})
}

// ProcessScratchpad instructs the sink to apply its stored scratchpad.
func (s *Sink) ProcessScratchpad(ctx context.Context) types.GatewayResultCode {
	return s.withStackStopped(ctx, func() types.GatewayResultCode {
		err := s.bus.ProcessScratchpad(ctx, s.identity.Name)
		return mapBusError(err)
	})
}

// SetTargetScratchpad records the next-boot OTAP directive.
func (s *Sink) SetTargetScratchpad(ctx context.Context, target types.TargetScratchpad) types.GatewayResultCode {
	err := s.bus.SetTargetScratchpad(ctx, s.identity.Name, sinkbus.TargetScratchpad{
		Action:         int(target.Action),
		TargetSequence: target.TargetSequence,
		TargetCRC:      target.TargetCRC,
		Param:          target.Param,
		Delay:          target.Delay,
	})
	return mapBusError(err)
}
