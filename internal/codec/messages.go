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

import "github.com/wirepas/gateway-go/internal/types"

// Request/response struct shapes follow the teacher's schema-registry
// client (cdc/sink/schema_registry.go: registerRequest/registerResponse/
// lookupResponse) -- plain tagged structs, one pair per operation, decoded
// from and encoded to JSON.

// RequestEnvelope is the shape shared by requests that carry nothing but a
// correlation id: get_gateway_info and get_configs.
type RequestEnvelope struct {
	ReqID uint32 `json:"req_id"`
}

// GetGatewayInfoResponse answers spec §4.7's get_gateway_info.
type GetGatewayInfoResponse struct {
	ReqID               uint32 `json:"req_id"`
	CurrentTimeSEpoch   int64  `json:"current_time_s_epoch"`
	GatewayModel        string `json:"gateway_model"`
	GatewayVersion      string `json:"gateway_version"`
	ImplementedAPIVer   string `json:"implemented_api_version"`
}

// GetConfigsResponse aggregates every sink's configuration.
type GetConfigsResponse struct {
	ReqID uint32                              `json:"req_id"`
	Sinks map[string]types.SinkConfiguration `json:"sinks"`
}

// SetConfigRequest carries a config patch for one sink.
type SetConfigRequest struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Config types.SinkConfiguration `json:"new_config"`
}

// SetConfigResponse carries the re-read configuration after a write,
// regardless of whether the write succeeded (spec §7).
type SetConfigResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
	Config types.SinkConfiguration `json:"config"`
}

// SendDataRequest is a downlink send (spec §6 S2/S3).
type SendDataRequest struct {
	ReqID          uint32 `json:"req_id"`
	SinkID         string `json:"sink_id"`
	Dest           uint32 `json:"dest_address"`
	SourceEndpoint uint8  `json:"src_ep"`
	DestEndpoint   uint8  `json:"dst_ep"`
	QoS            uint8  `json:"qos"`
	InitialDelayMS uint32 `json:"initial_delay_ms"`
	UnackCSMA      bool   `json:"is_unack_csma_ca"`
	HopLimit       uint8  `json:"hop_limit"`
	Payload        []byte `json:"data"`
}

// SendDataResponse reports the outcome of a SendDataRequest.
type SendDataResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
}

// OtapStatusRequest/Response map directly to Sink.ScratchpadStatus.
type OtapStatusRequest struct {
	ReqID  uint32 `json:"req_id"`
	SinkID string `json:"sink_id"`
}

type OtapStatusResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
	Status types.ScratchpadStatus  `json:"scratchpad"`
}

// OtapLoadScratchpadRequest uploads (or, with an empty Blob, clears) a
// scratchpad image.
type OtapLoadScratchpadRequest struct {
	ReqID  uint32 `json:"req_id"`
	SinkID string `json:"sink_id"`
	Seq    uint8  `json:"seq"`
	Blob   []byte `json:"scratchpad"`
}

type OtapLoadScratchpadResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
}

type OtapProcessScratchpadRequest struct {
	ReqID  uint32 `json:"req_id"`
	SinkID string `json:"sink_id"`
}

type OtapProcessScratchpadResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
}

type OtapSetTargetScratchpadRequest struct {
	ReqID  uint32                 `json:"req_id"`
	SinkID string                 `json:"sink_id"`
	Target types.TargetScratchpad `json:"target"`
}

type OtapSetTargetScratchpadResponse struct {
	ReqID  uint32                    `json:"req_id"`
	SinkID string                    `json:"sink_id"`
	Res    types.GatewayResultCode `json:"res"`
}

// StatusEventPayload is the retained gateway status document (spec §3/§4.8).
type StatusEventPayload struct {
	GatewayID string                              `json:"gw_id"`
	Model     string                              `json:"gateway_model"`
	Version   string                              `json:"gateway_version"`
	Online    bool                                `json:"online"`
	Sinks     map[string]types.SinkConfiguration `json:"sinks"`
}

// ReceivedDataEventPayload is the uplink event published per spec §3/§6.
type ReceivedDataEventPayload struct {
	SinkID         string `json:"sink_id"`
	ReceivedAtMS   int64  `json:"rx_time_ms_epoch"`
	SourceAddress  uint32 `json:"source_address"`
	DestAddress    uint32 `json:"dest_address"`
	SourceEndpoint uint8  `json:"source_endpoint"`
	DestEndpoint   uint8  `json:"destination_endpoint"`
	TravelTimeMS   uint32 `json:"travel_time_ms"`
	QoS            uint8  `json:"qos"`
	HopCount       uint8  `json:"hop_count"`
	Payload        []byte `json:"data,omitempty"`
	DataSize       int    `json:"data_size"`
	NetworkAddress uint32 `json:"network_address"`
	EventID        uint64 `json:"event_id"`
}
