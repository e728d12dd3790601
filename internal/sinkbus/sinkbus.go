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

// Package sinkbus declares the external SinkBus capability (spec §4.2). The
// concrete binding to the host system bus (D-Bus in the original) is out of
// scope (spec §1); this package only fixes the contract every other package
// in this module is written against, plus a fully in-memory fake used by
// tests throughout the repo.
package sinkbus

import "context"

// UplinkFrame is what the bus hands the gateway for every received radio
// message, prior to any endpoint filtering or event-id assignment.
type UplinkFrame struct {
	Owner          string
	TimestampMS    int64
	Source         uint32
	Dest           uint32
	SourceEndpoint uint8
	DestEndpoint   uint8
	TravelTimeMS   uint32
	QoS            uint8
	HopCount       uint8
	Payload        []byte
}

// LifecycleCallbacks are invoked by the bus as sinks and their stacks
// transition. Implementations must not block the bus event pump (spec §5).
type LifecycleCallbacks struct {
	OnAppear       func(name, owner string)
	OnDisappear    func(name string)
	OnStackStarted func(name string)
	OnStackStopped func(name string)
}

// Attribute is the fixed set of recognized sink attributes (spec §3). The
// bus proxy speaks in terms of these keys; Sink translates them into/out of
// types.SinkConfiguration.
type Attribute int

const (
	AttrStarted Attribute = iota
	AttrNodeAddress
	AttrNodeRole
	AttrNetworkAddress
	AttrNetworkChannel
	AttrChannelMap
	AttrAuthenticationKey
	AttrCipherKey
	AttrAreKeysSet
	AttrAppConfigSeq
	AttrAppConfigDiag
	AttrAppConfigData
	AttrNodeAddressRange
	AttrNetworkAddressRange
	AttrNetworkChannelRange
	AttrMaxMTU
	AttrHWMagic
	AttrStackProfile
	AttrFirmwareVersion
	AttrAppConfigMaxSize
	AttrCost
)

// ScratchpadOps groups the scratchpad-shaped proxy calls a sink exposes
// beyond plain attribute read/write.
type ScratchpadOps interface {
	GetScratchpadStatus(ctx context.Context, name string) (stored StoredScratchpad, processed ProcessedScratchpad, err error)
	UploadScratchpad(ctx context.Context, name string, seq uint8, blob []byte) error
	ProcessScratchpad(ctx context.Context, name string) error
	GetTargetScratchpad(ctx context.Context, name string) (target TargetScratchpad, present bool, err error)
	SetTargetScratchpad(ctx context.Context, name string, target TargetScratchpad) error
}

// StoredScratchpad mirrors types.StoredScratchpad at the bus boundary, kept
// separate so that sinkbus has no dependency on the internal/types package
// (it is meant to model a wire-level proxy, not the gateway's own model).
type StoredScratchpad struct {
	Seq    uint8
	CRC    uint16
	Len    uint32
	Status int
	Type   int
}

// ProcessedScratchpad mirrors types.ProcessedScratchpad at the bus boundary.
type ProcessedScratchpad struct {
	Seq uint8
	CRC uint16
	Len uint32
}

// TargetScratchpad mirrors types.TargetScratchpad at the bus boundary.
type TargetScratchpad struct {
	Action         int
	TargetSequence uint8
	TargetCRC      uint16
	Param          uint8
	Delay          uint8
}

// SinkProxy is the set of operations the bus exposes for one named sink.
type SinkProxy interface {
	ScratchpadOps

	ReadAttribute(ctx context.Context, name string, attr Attribute) (interface{}, error)
	WriteAttribute(ctx context.Context, name string, attr Attribute, value interface{}) error

	SendMessage(ctx context.Context, name string, dst uint32, srcEp, dstEp uint8, qos uint8, initialDelayMS uint32, unackCSMA bool, hopLimit uint8, payload []byte) error

	SetStackState(ctx context.Context, name string, started bool) error

	GetAppConfig(ctx context.Context, name string) (seq uint8, diag uint16, data []byte, err error)
	SetAppConfig(ctx context.Context, name string, seq uint8, diag uint16, data []byte) error
}

// Bus is the full capability the gateway core consumes. It is expected to be
// supplied by a binding package that talks to the real host bus; the core
// never constructs one itself.
type Bus interface {
	SinkProxy

	ListSinks(ctx context.Context) ([]string, error)
	AttachLifecycle(cb LifecycleCallbacks)
	AttachUplink(cb func(UplinkFrame))
}
