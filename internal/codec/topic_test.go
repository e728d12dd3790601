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

package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/codec"
)

func TestTopicRoundTrip(t *testing.T) {
	kinds := []codec.Kind{
		codec.KindStatusEvent,
		codec.KindReceivedDataEvent,
		codec.KindRequestGetGatewayInfo,
		codec.KindRequestGetConfigs,
		codec.KindRequestSetConfig,
		codec.KindRequestSendData,
		codec.KindRequestOtapStatus,
		codec.KindRequestOtapLoadScratchpad,
		codec.KindRequestOtapProcessScratchpad,
		codec.KindRequestOtapSetTargetScratchpad,
		codec.KindResponseGetGatewayInfo,
		codec.KindResponseGetConfigs,
		codec.KindResponseSetConfig,
		codec.KindResponseSendData,
		codec.KindResponseOtapStatus,
		codec.KindResponseOtapLoadScratchpad,
		codec.KindResponseOtapProcessScratchpad,
		codec.KindResponseOtapSetTargetScratchpad,
	}

	params := codec.TopicParams{
		GatewayID:      "gw-1",
		SinkID:         "sink0",
		NetworkAddress: 0xABCDEF,
		SourceEndpoint: 5,
		DestEndpoint:   7,
	}

	for _, k := range kinds {
		topic := codec.GenerateTopic(k, params)
		got, err := codec.ParseTopic(k, topic)
		require.NoErrorf(t, err, "kind %v topic %q", k, topic)
		require.Equal(t, params.GatewayID, got.GatewayID)
		if k == codec.KindReceivedDataEvent {
			require.Equal(t, params.SinkID, got.SinkID)
			require.Equal(t, params.NetworkAddress, got.NetworkAddress)
			require.Equal(t, params.SourceEndpoint, got.SourceEndpoint)
			require.Equal(t, params.DestEndpoint, got.DestEndpoint)
		}
	}
}

func TestReceivedDataTopicShape(t *testing.T) {
	topic := codec.GenerateTopic(codec.KindReceivedDataEvent, codec.TopicParams{
		GatewayID:      "gw-1",
		SinkID:         "sink0",
		NetworkAddress: 11259375,
		SourceEndpoint: 5,
		DestEndpoint:   7,
	})
	require.Equal(t, "gw-event/received_data/gw-1/sink0/11259375/5/7", topic)
}

func TestSubscriptionTopicIsWildcard(t *testing.T) {
	topic := codec.SubscriptionTopic(codec.KindRequestSendData, "gw-1")
	require.Equal(t, "gw-request/send_data/gw-1/+", topic)
}
