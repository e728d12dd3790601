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

package types

// SinkIdentity pairs the stable name a sink is addressed by on the broker
// (e.g. "sink0") with the transient owner identifier the local bus issues it.
// Owner ids are only meaningful to attribute inbound uplink to a sink; they
// are not stable across bus restarts.
type SinkIdentity struct {
	Name  string
	Owner string
}

// NodeRole packs the base role plus its CSMA-CA and autorole flag bits, as
// read from a sink's node_role attribute.
type NodeRole struct {
	Base            uint8
	CSMACA          bool
	Autorole        bool
}

// ScratchpadType is the firmware-area state of a stored scratchpad.
type ScratchpadType int

const (
	ScratchpadBlank ScratchpadType = iota
	ScratchpadPresent
	ScratchpadProcess
)

// ScratchpadResult is the processing outcome of a stored scratchpad.
type ScratchpadResult int

const (
	ScratchpadSuccess ScratchpadResult = iota
	ScratchpadNew
	ScratchpadError
)

// ScratchpadAction is the target-scratchpad directive a sink was told to
// follow on its next reboot.
type ScratchpadAction int

const (
	ActionNoOTAP ScratchpadAction = iota
	ActionLegacyOTAP
	ActionPropagateOnly
	ActionPropagateAndProcess
	ActionPropagateAndProcessWithDelay
)

// StoredScratchpad describes the scratchpad image currently held on a sink.
type StoredScratchpad struct {
	Seq    uint8
	CRC    uint16
	Len    uint32
	Status ScratchpadResult
	Type   ScratchpadType
}

// ProcessedScratchpad describes the scratchpad image the sink last applied.
type ProcessedScratchpad struct {
	Seq uint8
	CRC uint16
	Len uint32
}

// TargetScratchpad is the optional next-boot directive a sink carries; only
// populated for sinks whose stack reports firmware > 5.0 (see Sink.ReadConfig).
type TargetScratchpad struct {
	Action         ScratchpadAction
	TargetSequence uint8
	TargetCRC      uint16
	// exactly one of Param/Delay is meaningful, chosen by Action.
	Param uint8
	Delay uint8
}

// ScratchpadStatus is the full scratchpad view folded into a SinkConfiguration.
type ScratchpadStatus struct {
	Stored         StoredScratchpad
	Processed      ProcessedScratchpad
	FirmwareAreaID uint32
	Target         *TargetScratchpad
}

// SinkConfiguration is a sparse view over the fixed attribute set a sink
// exposes. Fields use pointers (or nil slices) so that "absent on read" is
// distinguishable from a real zero value, per spec §3: "Keys absent from a
// read remain absent (not null)".
type SinkConfiguration struct {
	Started           *bool
	NodeAddress       *uint32
	NodeRole          *NodeRole
	NetworkAddress    *uint32 // u24, stored widened
	NetworkChannel    *uint8
	ChannelMap        *uint32
	AuthenticationKey []byte // write-only, 16B
	CipherKey         []byte // write-only, 16B
	AreKeysSet        *bool  // read-only
	AppConfigSeq      *uint8
	AppConfigDiag     *uint16
	AppConfigData     []byte

	NodeAddressRange    *Range
	NetworkAddressRange *Range
	NetworkChannelRange *Range
	MaxMTU              *uint16
	HWMagic             *uint16
	StackProfile        *uint16
	FirmwareVersion     *[4]uint8
	AppConfigMaxSize    *uint8

	Scratchpad *ScratchpadStatus
}

// Range is an inclusive bound pair reported by a sink for one of its
// attribute ranges (node address, app config, channel, ...).
type Range struct {
	Min, Max uint32
}

// Clone returns a deep-enough copy of cfg suitable for caching: pointer
// fields are copied to fresh backing storage so later mutation of the
// original cannot alias the cached value.
func (cfg SinkConfiguration) Clone() SinkConfiguration {
	out := cfg
	if cfg.Started != nil {
		v := *cfg.Started
		out.Started = &v
	}
	if cfg.NodeAddress != nil {
		v := *cfg.NodeAddress
		out.NodeAddress = &v
	}
	if cfg.NodeRole != nil {
		v := *cfg.NodeRole
		out.NodeRole = &v
	}
	if cfg.NetworkAddress != nil {
		v := *cfg.NetworkAddress
		out.NetworkAddress = &v
	}
	if cfg.NetworkChannel != nil {
		v := *cfg.NetworkChannel
		out.NetworkChannel = &v
	}
	if cfg.ChannelMap != nil {
		v := *cfg.ChannelMap
		out.ChannelMap = &v
	}
	if cfg.AreKeysSet != nil {
		v := *cfg.AreKeysSet
		out.AreKeysSet = &v
	}
	if cfg.AppConfigSeq != nil {
		v := *cfg.AppConfigSeq
		out.AppConfigSeq = &v
	}
	if cfg.AppConfigDiag != nil {
		v := *cfg.AppConfigDiag
		out.AppConfigDiag = &v
	}
	if cfg.AppConfigData != nil {
		out.AppConfigData = append([]byte(nil), cfg.AppConfigData...)
	}
	if cfg.FirmwareVersion != nil {
		v := *cfg.FirmwareVersion
		out.FirmwareVersion = &v
	}
	if cfg.Scratchpad != nil {
		sp := *cfg.Scratchpad
		if cfg.Scratchpad.Target != nil {
			t := *cfg.Scratchpad.Target
			sp.Target = &t
		}
		out.Scratchpad = &sp
	}
	// write-only keys are never cached.
	out.AuthenticationKey = nil
	out.CipherKey = nil
	return out
}

// Merge overlays non-nil/non-empty fields of patch onto the receiver,
// implementing "a write accepts any subset; keys not present are untouched".
func (cfg *SinkConfiguration) Merge(patch SinkConfiguration) {
	if patch.Started != nil {
		cfg.Started = patch.Started
	}
	if patch.NodeAddress != nil {
		cfg.NodeAddress = patch.NodeAddress
	}
	if patch.NodeRole != nil {
		cfg.NodeRole = patch.NodeRole
	}
	if patch.NetworkAddress != nil {
		cfg.NetworkAddress = patch.NetworkAddress
	}
	if patch.NetworkChannel != nil {
		cfg.NetworkChannel = patch.NetworkChannel
	}
	if patch.ChannelMap != nil {
		cfg.ChannelMap = patch.ChannelMap
	}
	if patch.AppConfigSeq != nil {
		cfg.AppConfigSeq = patch.AppConfigSeq
	}
	if patch.AppConfigDiag != nil {
		cfg.AppConfigDiag = patch.AppConfigDiag
	}
	if patch.AppConfigData != nil {
		cfg.AppConfigData = patch.AppConfigData
	}
}
