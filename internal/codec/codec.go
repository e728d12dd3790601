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

package codec

import (
	"encoding/json"

	"github.com/wirepas/gateway-go/internal/types"
)

// Codec decodes request payloads and encodes response/event/status payloads.
// Encoding is pure and never fails for well-typed Go values; decoding can
// fail with *ParseError (spec §4.1).
type Codec struct{}

// New returns the JSON-backed Codec (see SPEC_FULL.md §3 for why JSON was
// chosen over hand-rolling the out-of-scope protobuf wire format).
func New() *Codec { return &Codec{} }

func (Codec) decode(payload []byte, reqIDRequired bool, v interface{}) error {
	if len(payload) == 0 {
		return newParseError("empty payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return newParseError("malformed json: %v", err)
	}
	if reqIDRequired {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return newParseError("malformed json: %v", err)
		}
		if _, ok := fields["req_id"]; !ok {
			return newParseError("missing req_id")
		}
	}
	return nil
}

func (Codec) encode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Encoding is specified to never fail for well-typed inputs; a
		// failure here means a caller passed something that cannot be
		// represented at all (e.g. a channel), which is a programmer error.
		panic(err)
	}
	return b
}

// DecodeRequestEnvelope decodes the bare {req_id} shape used by
// get_gateway_info and get_configs requests.
func (c Codec) DecodeRequestEnvelope(payload []byte) (RequestEnvelope, error) {
	var req RequestEnvelope
	if err := c.decode(payload, true, &req); err != nil {
		return RequestEnvelope{}, err
	}
	return req, nil
}

func (c Codec) DecodeSetConfigRequest(payload []byte) (SetConfigRequest, error) {
	var req SetConfigRequest
	if err := c.decode(payload, true, &req); err != nil {
		return SetConfigRequest{}, err
	}
	return req, nil
}

func (c Codec) DecodeSendDataRequest(payload []byte) (SendDataRequest, error) {
	var req SendDataRequest
	if err := c.decode(payload, true, &req); err != nil {
		return SendDataRequest{}, err
	}
	if req.QoS > 2 {
		return SendDataRequest{}, newParseError("qos %d out of range", req.QoS)
	}
	return req, nil
}

func (c Codec) DecodeOtapStatusRequest(payload []byte) (OtapStatusRequest, error) {
	var req OtapStatusRequest
	if err := c.decode(payload, true, &req); err != nil {
		return OtapStatusRequest{}, err
	}
	return req, nil
}

func (c Codec) DecodeOtapLoadScratchpadRequest(payload []byte) (OtapLoadScratchpadRequest, error) {
	var req OtapLoadScratchpadRequest
	if err := c.decode(payload, true, &req); err != nil {
		return OtapLoadScratchpadRequest{}, err
	}
	return req, nil
}

func (c Codec) DecodeOtapProcessScratchpadRequest(payload []byte) (OtapProcessScratchpadRequest, error) {
	var req OtapProcessScratchpadRequest
	if err := c.decode(payload, true, &req); err != nil {
		return OtapProcessScratchpadRequest{}, err
	}
	return req, nil
}

func (c Codec) DecodeOtapSetTargetScratchpadRequest(payload []byte) (OtapSetTargetScratchpadRequest, error) {
	var req OtapSetTargetScratchpadRequest
	if err := c.decode(payload, true, &req); err != nil {
		return OtapSetTargetScratchpadRequest{}, err
	}
	if req.Target.Action < types.ActionNoOTAP || req.Target.Action > types.ActionPropagateAndProcessWithDelay {
		return OtapSetTargetScratchpadRequest{}, newParseError("action %d out of range", req.Target.Action)
	}
	return req, nil
}

func (c Codec) EncodeGetGatewayInfoResponse(v GetGatewayInfoResponse) []byte { return c.encode(v) }
func (c Codec) EncodeGetConfigsResponse(v GetConfigsResponse) []byte         { return c.encode(v) }
func (c Codec) EncodeSetConfigResponse(v SetConfigResponse) []byte          { return c.encode(v) }
func (c Codec) EncodeSendDataResponse(v SendDataResponse) []byte            { return c.encode(v) }
func (c Codec) EncodeOtapStatusResponse(v OtapStatusResponse) []byte        { return c.encode(v) }
func (c Codec) EncodeOtapLoadScratchpadResponse(v OtapLoadScratchpadResponse) []byte {
	return c.encode(v)
}
func (c Codec) EncodeOtapProcessScratchpadResponse(v OtapProcessScratchpadResponse) []byte {
	return c.encode(v)
}
func (c Codec) EncodeOtapSetTargetScratchpadResponse(v OtapSetTargetScratchpadResponse) []byte {
	return c.encode(v)
}
func (c Codec) EncodeStatusEvent(v StatusEventPayload) []byte             { return c.encode(v) }
func (c Codec) EncodeReceivedDataEvent(v ReceivedDataEventPayload) []byte { return c.encode(v) }

// StatusFromGatewayStatus converts the internal status model into its wire
// shape.
func StatusFromGatewayStatus(s types.GatewayStatus) StatusEventPayload {
	return StatusEventPayload{
		GatewayID: s.GatewayID,
		Model:     s.Model,
		Version:   s.Version,
		Online:    s.Online,
		Sinks:     s.Sinks,
	}
}

// ReceivedDataFromEvent converts the internal uplink event model into its
// wire shape.
func ReceivedDataFromEvent(e types.ReceivedDataEvent) ReceivedDataEventPayload {
	return ReceivedDataEventPayload{
		SinkID:         e.SinkID,
		ReceivedAtMS:   e.ReceivedAtMS,
		SourceAddress:  e.SourceAddress,
		DestAddress:    e.DestAddress,
		SourceEndpoint: e.SourceEndpoint,
		DestEndpoint:   e.DestEndpoint,
		TravelTimeMS:   e.TravelTimeMS,
		QoS:            e.QoS,
		HopCount:       e.HopCount,
		Payload:        e.Payload,
		DataSize:       e.DataSize,
		NetworkAddress: e.NetworkAddress,
		EventID:        e.EventID,
	}
}
