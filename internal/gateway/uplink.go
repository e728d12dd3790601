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

package gateway

import (
	"math/rand"

	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/metrics"
	"github.com/wirepas/gateway-go/internal/sinkbus"
)

// onUplink is the sinkbus.Bus uplink callback: it resolves the frame's
// owner to a stable sink name, applies the ignored/whitened endpoint
// filters (spec §3 "Endpoint filters", §8 property 3), assigns an event id,
// and publishes the translated event. It must not block the bus event pump
// (spec §5), so publishing only enqueues onto the transport's outbound
// queue and never waits on the broker.
func (g *Gateway) onUplink(frame sinkbus.UplinkFrame) {
	ep := int(frame.DestEndpoint)
	if _, ok := g.ignored[ep]; ok {
		metrics.UplinkEventsTotal.WithLabelValues("ignored").Inc()
		return
	}

	sinkName := g.sinks.ResolveOwner(frame.Owner)

	var networkAddress uint32
	if s, ok := g.sinks.GetSink(sinkName); ok {
		if na := s.CachedConfig().NetworkAddress; na != nil {
			networkAddress = *na
		}
	}

	payload := frame.Payload
	disposition := "published"
	if _, ok := g.whitened[ep]; ok {
		payload = nil
		disposition = "whitened"
	}

	event := codec.ReceivedDataEventPayload{
		SinkID:         sinkName,
		ReceivedAtMS:   frame.TimestampMS,
		SourceAddress:  frame.Source,
		DestAddress:    frame.Dest,
		SourceEndpoint: frame.SourceEndpoint,
		DestEndpoint:   frame.DestEndpoint,
		TravelTimeMS:   frame.TravelTimeMS,
		QoS:            frame.QoS,
		HopCount:       frame.HopCount,
		Payload:        payload,
		DataSize:       len(frame.Payload),
		NetworkAddress: networkAddress,
		EventID:        g.nextEventIDValue(),
	}

	topic := codec.GenerateTopic(codec.KindReceivedDataEvent, codec.TopicParams{
		GatewayID:      g.id,
		SinkID:         sinkName,
		NetworkAddress: networkAddress,
		SourceEndpoint: frame.SourceEndpoint,
		DestEndpoint:   frame.DestEndpoint,
	})
	g.transport.Enqueue(topic, g.codec.EncodeReceivedDataEvent(event), event.QoS, false)
	metrics.UplinkEventsTotal.WithLabelValues(disposition).Inc()
}

// nextEventIDValue implements spec §3's event-id rule: monotonically
// increasing from 0 when debug.incr_data_event_id is enabled, otherwise a
// fresh 64-bit random value per event.
func (g *Gateway) nextEventIDValue() uint64 {
	if g.incrEventID {
		return g.nextEventID.Inc() - 1
	}
	return rand.Uint64()
}
