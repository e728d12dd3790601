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

// Package codec implements the gateway's Codec (spec §4.1): decoding
// request payloads, encoding response/event/status payloads, and generating
// the opaque MQTT topic strings of spec §6.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates every distinct topic shape in spec §6.
type Kind int

const (
	KindStatusEvent Kind = iota
	KindReceivedDataEvent
	KindRequestGetGatewayInfo
	KindRequestGetConfigs
	KindRequestSetConfig
	KindRequestSendData
	KindRequestOtapStatus
	KindRequestOtapLoadScratchpad
	KindRequestOtapProcessScratchpad
	KindRequestOtapSetTargetScratchpad
	KindResponseGetGatewayInfo
	KindResponseGetConfigs
	KindResponseSetConfig
	KindResponseSendData
	KindResponseOtapStatus
	KindResponseOtapLoadScratchpad
	KindResponseOtapProcessScratchpad
	KindResponseOtapSetTargetScratchpad
)

const (
	prefixEvent    = "gw-event"
	prefixRequest  = "gw-request"
	prefixResponse = "gw-response"
)

var leafByKind = map[Kind]string{
	KindStatusEvent:                    "status",
	KindReceivedDataEvent:              "received_data",
	KindRequestGetGatewayInfo:          "get_gw_info",
	KindRequestGetConfigs:              "get_configs",
	KindRequestSetConfig:               "set_config",
	KindRequestSendData:                "send_data",
	KindRequestOtapStatus:              "otap_status",
	KindRequestOtapLoadScratchpad:      "otap_load_scratchpad",
	KindRequestOtapProcessScratchpad:   "otap_process_scratchpad",
	KindRequestOtapSetTargetScratchpad: "otap_set_target_scratchpad",
	KindResponseGetGatewayInfo:         "get_gw_info",
	KindResponseGetConfigs:             "get_configs",
	KindResponseSetConfig:              "set_config",
	KindResponseSendData:               "send_data",
	KindResponseOtapStatus:             "otap_status",
	KindResponseOtapLoadScratchpad:     "otap_load_scratchpad",
	KindResponseOtapProcessScratchpad:  "otap_process_scratchpad",
	KindResponseOtapSetTargetScratchpad: "otap_set_target_scratchpad",
}

func prefixOf(k Kind) string {
	switch k {
	case KindStatusEvent, KindReceivedDataEvent:
		return prefixEvent
	case KindRequestGetGatewayInfo, KindRequestGetConfigs, KindRequestSetConfig,
		KindRequestSendData, KindRequestOtapStatus, KindRequestOtapLoadScratchpad,
		KindRequestOtapProcessScratchpad, KindRequestOtapSetTargetScratchpad:
		return prefixRequest
	default:
		return prefixResponse
	}
}

// perSink reports whether the topic's leaf needs a trailing sink segment.
func perSink(k Kind) bool {
	return k != KindStatusEvent && k != KindRequestGetGatewayInfo && k != KindResponseGetGatewayInfo && k != KindRequestGetConfigs && k != KindResponseGetConfigs
}

// TopicParams carries the variable segments used to build or parsed from a
// topic string (spec §6: "(kind, gateway_id, sink_id?, network_address?,
// src_ep?, dst_ep?)").
type TopicParams struct {
	GatewayID      string
	SinkID         string
	NetworkAddress uint32
	SourceEndpoint uint8
	DestEndpoint   uint8
}

// GenerateTopic produces the deterministic, collision-free topic string for
// kind (spec §4.1, §8 property 1).
func GenerateTopic(kind Kind, p TopicParams) string {
	leaf := leafByKind[kind]
	prefix := prefixOf(kind)

	if kind == KindReceivedDataEvent {
		return fmt.Sprintf("%s/%s/%s/%s/%d/%d/%d", prefix, leaf, p.GatewayID, p.SinkID, p.NetworkAddress, p.SourceEndpoint, p.DestEndpoint)
	}
	if !perSink(kind) {
		return fmt.Sprintf("%s/%s/%s", prefix, leaf, p.GatewayID)
	}
	return fmt.Sprintf("%s/%s/%s/%s", prefix, leaf, p.GatewayID, p.SinkID)
}

// SubscriptionTopic produces the wildcard form the gateway subscribes to
// for a given request kind (spec §6: "+ is a single-segment wildcard").
func SubscriptionTopic(kind Kind, gatewayID string) string {
	leaf := leafByKind[kind]
	if !perSink(kind) {
		return fmt.Sprintf("%s/%s/%s", prefixRequest, leaf, gatewayID)
	}
	return fmt.Sprintf("%s/%s/%s/+", prefixRequest, leaf, gatewayID)
}

// ParseTopic is the inverse of GenerateTopic: given a concrete (non-wildcard)
// topic and the kind it is expected to match, it recovers TopicParams.
func ParseTopic(kind Kind, topic string) (TopicParams, error) {
	leaf := leafByKind[kind]
	prefix := prefixOf(kind)
	segs := strings.Split(topic, "/")

	if kind == KindReceivedDataEvent {
		if len(segs) != 7 || segs[0] != prefix || segs[1] != leaf {
			return TopicParams{}, fmt.Errorf("codec: malformed received_data topic %q", topic)
		}
		na, err := strconv.ParseUint(segs[4], 10, 32)
		if err != nil {
			return TopicParams{}, fmt.Errorf("codec: bad network address in topic %q: %w", topic, err)
		}
		srcEp, err := strconv.ParseUint(segs[5], 10, 8)
		if err != nil {
			return TopicParams{}, fmt.Errorf("codec: bad src endpoint in topic %q: %w", topic, err)
		}
		dstEp, err := strconv.ParseUint(segs[6], 10, 8)
		if err != nil {
			return TopicParams{}, fmt.Errorf("codec: bad dst endpoint in topic %q: %w", topic, err)
		}
		return TopicParams{GatewayID: segs[2], SinkID: segs[3], NetworkAddress: uint32(na), SourceEndpoint: uint8(srcEp), DestEndpoint: uint8(dstEp)}, nil
	}

	if !perSink(kind) {
		if len(segs) != 3 || segs[0] != prefix || segs[1] != leaf {
			return TopicParams{}, fmt.Errorf("codec: malformed topic %q", topic)
		}
		return TopicParams{GatewayID: segs[2]}, nil
	}

	if len(segs) != 4 || segs[0] != prefix || segs[1] != leaf {
		return TopicParams{}, fmt.Errorf("codec: malformed topic %q", topic)
	}
	return TopicParams{GatewayID: segs[2], SinkID: segs[3]}, nil
}
