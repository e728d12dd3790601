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

package dispatcher_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/dispatcher"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

// fakePublisher records every publish and lets the test drive subscribed
// handlers directly, standing in for *mqtttransport.Transport.
type fakePublisher struct {
	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
	sent     []sentItem
}

type sentItem struct {
	topic   string
	payload []byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakePublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakePublisher) Enqueue(topic string, payload []byte, _ byte, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{topic: topic, payload: payload})
}

// deliver simulates an inbound publish on concreteTopic by looking up the
// wildcard subscription it matches (last segment replaced with "+") and
// invoking that handler with the concrete topic intact, the way paho would.
func (f *fakePublisher) deliver(concreteTopic string, payload []byte) {
	segs := strings.Split(concreteTopic, "/")
	wildcard := concreteTopic
	if len(segs) > 0 {
		segs[len(segs)-1] = "+"
		wildcard = strings.Join(segs, "/")
	}

	f.mu.Lock()
	h, ok := f.handlers[wildcard]
	if !ok {
		h, ok = f.handlers[concreteTopic]
	}
	f.mu.Unlock()
	if !ok {
		panic("no handler subscribed matching " + concreteTopic)
	}
	h(nil, fakeMessage{topic: concreteTopic, payload: payload})
}

func (f *fakePublisher) lastSent() (sentItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentItem{}, false
	}
	return f.sent[len(f.sent)-1], true
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestSendData_UnknownSink_NoBusCall(t *testing.T) {
	pub := newFakePublisher()
	c := codec.New()
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})

	d := dispatcher.New(c, sinks, pub, nil, dispatcher.Info{GatewayID: "gw-1", Model: "m", Version: "v", APIVersion: "1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	reqPayload := []byte(`{"req_id":1,"sink_id":"sinkX","dest_address":1,"src_ep":1,"dst_ep":1,"qos":0,"hop_limit":1,"data":""}`)
	pub.deliver("gw-request/send_data/gw-1/sinkX", reqPayload)

	require.Eventually(t, func() bool {
		item, ok := pub.lastSent()
		return ok && item.topic == "gw-response/send_data/gw-1/sinkX"
	}, time.Second, 5*time.Millisecond)

	item, _ := pub.lastSent()
	var resp codec.SendDataResponse
	require.NoError(t, json.Unmarshal(item.payload, &resp))
	require.Equal(t, types.ResInvalidSinkID, resp.Res)
}

func TestSendData_HopLimitRejectedBeforeDispatch(t *testing.T) {
	pub := newFakePublisher()
	c := codec.New()
	bus := sinkbus.NewFake()
	sinks := sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{})

	d := dispatcher.New(c, sinks, pub, nil, dispatcher.Info{GatewayID: "gw-1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	reqPayload := []byte(`{"req_id":2,"sink_id":"sink0","hop_limit":16}`)
	pub.deliver("gw-request/send_data/gw-1/sink0", reqPayload)

	require.Eventually(t, func() bool {
		item, ok := pub.lastSent()
		return ok && item.topic == "gw-response/send_data/gw-1/sink0"
	}, time.Second, 5*time.Millisecond)

	item, _ := pub.lastSent()
	var resp codec.SendDataResponse
	require.NoError(t, json.Unmarshal(item.payload, &resp))
	require.Equal(t, types.ResInvalidMaxHopCount, resp.Res)
}
