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

// Package gateway implements C11, the top-level composition and lifecycle
// owner (spec §2, §9 "Global state"): it wires the Codec, SinkManager,
// MQTTTransport, Dispatcher, StatusPublisher, BlackHoleMonitor, and the two
// periodic broadcasters together, owns the gateway's identifiers, performs
// the uplink endpoint-filter translation (spec §3 "Endpoint filters", §8
// properties 2-3), and guarantees resource release on every exit path.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wirepas/gateway-go/internal/blackhole"
	"github.com/wirepas/gateway-go/internal/broadcast"
	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/config"
	"github.com/wirepas/gateway-go/internal/dispatcher"
	"github.com/wirepas/gateway-go/internal/mqtttransport"
	"github.com/wirepas/gateway-go/internal/sink"
	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/statuspublisher"
)

const apiVersion = "1.0"

// Gateway owns every component's lifecycle for the process.
type Gateway struct {
	id      string
	model   string
	version string

	bus   sinkbus.Bus
	codec *codec.Codec

	ignored  map[int]struct{}
	whitened map[int]struct{}

	incrEventID bool
	nextEventID atomic.Uint64

	sinks     *sinkmanager.Manager
	transport *mqtttransport.Transport
	dispatch  *dispatcher.Dispatcher
	status    *statuspublisher.StatusPublisher
	monitor   *blackhole.Monitor
	rtc       *broadcast.RTCBroadcaster
	keepalive *broadcast.KeepAliveBroadcaster
}

// New builds a Gateway from a loaded configuration, a caller-supplied
// SinkBus binding, and a caller-supplied broadcast time source (local clock
// or NTP, per spec §9 Open Question 2). gatewayID defaults to a fresh UUID
// when cfg.Gateway.GatewayID is empty (SPEC_FULL.md's uuid-default note).
func New(cfg *config.Config, bus sinkbus.Bus, timeSource broadcast.TimeSource) (*Gateway, error) {
	ignored, whitened, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	id := cfg.Gateway.GatewayID
	if id == "" {
		id = uuid.New().String()
	}

	g := &Gateway{
		id:          id,
		model:       cfg.Gateway.GatewayModel,
		version:     cfg.Gateway.GatewayVersion,
		bus:         bus,
		codec:       codec.New(),
		ignored:     ignored,
		whitened:    whitened,
		incrEventID: cfg.Debug.IncrDataEventID,
	}

	transportCfg := mqtttransport.Config{
		Hostname:            cfg.MQTT.Hostname,
		Port:                cfg.MQTT.Port,
		Username:            cfg.MQTT.Username,
		Password:            cfg.MQTT.Password,
		ClientID:            id,
		UseWebsocket:        cfg.MQTT.UseWebsocket,
		PersistSession:      cfg.MQTT.PersistSession,
		ForceUnsecure:       cfg.MQTT.ForceUnsecure,
		AllowUntrusted:      cfg.MQTT.AllowUntrusted,
		ReconnectDelay:      cfg.MQTT.ReconnectDelay(),
		MaxInflightMessages: cfg.MQTT.MaxInflightMessages,
		RateLimitPPS:        cfg.MQTT.RateLimitPPS,
		LastWillTopic:       codec.GenerateTopic(codec.KindStatusEvent, codec.TopicParams{GatewayID: id}),
		LastWillPayload: g.codec.EncodeStatusEvent(codec.StatusEventPayload{
			GatewayID: id, Model: g.model, Version: g.version, Online: false,
		}),
	}
	g.transport = mqtttransport.New(transportCfg, g.onMQTTConnect, g.onMQTTTerminate)

	// sinkmanager's callbacks are bound as method values on g before the
	// components they notify exist; that is fine, since they are only
	// invoked later, once Run has started every component.
	g.sinks = sinkmanager.New(context.Background(), bus, sinkmanager.Callbacks{
		OnSinkAdded:        g.onSinkAdded,
		OnSinkRemoved:      g.onSinkRemoved,
		OnSinkStackStarted: g.onSinkStackChanged,
		OnSinkStackStopped: g.onSinkStackChanged,
	})

	g.status = statuspublisher.New(g.codec, g.sinks, g.transport, statuspublisher.Info{
		GatewayID: id, Model: g.model, Version: g.version,
	})

	g.monitor = blackhole.New(g.transport, g.sinks, blackhole.Config{
		MaxBufferedPackets:     cfg.Buffering.MaxBufferedPackets,
		MaxDelayWithoutPublish: cfg.Buffering.MaxDelayWithoutPublishDuration(),
		MinimumSinkCost:        cfg.Buffering.MinimumSinkCost,
		StopStack:              cfg.Buffering.StopStack,
	})

	g.keepalive = broadcast.NewKeepAlive(g.sinks, timeSource, g.transport, broadcast.KeepAliveConfig{
		Period:           30 * time.Second,
		TimezoneOffsetMN: 0,
		ReconnectBurst:   true,
	})
	g.rtc = broadcast.NewRTC(g.sinks, timeSource, broadcast.RTCConfig{
		Period:          1200 * time.Second,
		TimezoneOffsetS: 0,
	})

	g.dispatch = dispatcher.New(g.codec, g.sinks, g.transport, g.status, dispatcher.Info{
		GatewayID: id, Model: g.model, Version: g.version, APIVersion: apiVersion,
	})

	bus.AttachUplink(g.onUplink)

	return g, nil
}

// Run starts every component and blocks until ctx is cancelled or a fatal
// component error occurs, per spec §9's "start()/stop()... release on all
// exit paths".
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.sinks.Bootstrap(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { g.transport.Run(egctx); return nil })
	eg.Go(func() error { g.status.Run(egctx); return nil })
	eg.Go(func() error { g.monitor.Run(egctx); return nil })
	eg.Go(func() error { g.rtc.Run(egctx); return nil })
	eg.Go(func() error { g.keepalive.Run(egctx); return nil })
	eg.Go(func() error { return g.dispatch.Run(egctx) })

	err := eg.Wait()
	g.status.Stop()
	g.monitor.Stop()
	g.rtc.Stop()
	g.keepalive.Stop()
	g.transport.Stop()
	return err
}

func (g *Gateway) onMQTTConnect() {
	g.status.SetOnline(true)
	g.keepalive.OnReconnect()
}

func (g *Gateway) onMQTTTerminate(err error) {
	log.Error("mqtt transport terminated fatally", zap.Error(err))
	g.status.SetOnline(false)
}

func (g *Gateway) onSinkAdded(s *sink.Sink) {
	g.monitor.OnSinkAppeared(context.Background(), s)
	g.status.Nudge()
}

func (g *Gateway) onSinkRemoved(name string) {
	g.status.Nudge()
}

func (g *Gateway) onSinkStackChanged(name string) {
	g.status.Nudge()
}
