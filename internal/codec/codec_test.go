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

func TestDecodeSendDataRequest_MalformedPayloadDropped(t *testing.T) {
	c := codec.New()
	_, err := c.DecodeSendDataRequest([]byte(`not json`))
	require.Error(t, err)
	var pe *codec.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestDecodeSendDataRequest_EmptyPayload(t *testing.T) {
	c := codec.New()
	_, err := c.DecodeSendDataRequest(nil)
	require.Error(t, err)
}

func TestDecodeSendDataRequest_OK(t *testing.T) {
	c := codec.New()
	req, err := c.DecodeSendDataRequest([]byte(`{"req_id":42,"sink_id":"sink0","dest_address":1,"src_ep":1,"dst_ep":1,"qos":0,"hop_limit":10,"data":"qg=="}`))
	require.NoError(t, err)
	require.EqualValues(t, 42, req.ReqID)
	require.Equal(t, "sink0", req.SinkID)
	require.Equal(t, []byte{0xAA}, req.Payload)
}

func TestDecodeSendDataRequest_QoSOutOfRange(t *testing.T) {
	c := codec.New()
	_, err := c.DecodeSendDataRequest([]byte(`{"req_id":1,"sink_id":"sink0","qos":9}`))
	require.Error(t, err)
}

func TestDecodeOtapSetTarget_ActionOutOfRange(t *testing.T) {
	c := codec.New()
	_, err := c.DecodeOtapSetTargetScratchpadRequest([]byte(`{"req_id":1,"sink_id":"sink0","target":{"Action":99}}`))
	require.Error(t, err)
}

func TestEncodeSendDataResponse(t *testing.T) {
	c := codec.New()
	payload := c.EncodeSendDataResponse(codec.SendDataResponse{ReqID: 42, SinkID: "sink0"})
	require.Contains(t, string(payload), `"req_id":42`)
}
