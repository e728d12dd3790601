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

// Package dispatcher implements the request/response routing core (spec
// §4.7): topic-driven decode, deferred execution on a small worker pool so
// the MQTT worker is never blocked on bus I/O, and exactly one response per
// request on the matching response topic.
//
// The worker-pool shape (errgroup.Group running a fixed number of goroutines
// pulling off a shared channel, exiting together on the first error or on
// context cancellation) is grounded on cdc/replication/ddl_handler.go's
// errgroup-based Run(ctx).
package dispatcher

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wirepas/gateway-go/internal/codec"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

// defaultPoolSize is the "small (default 4)" worker pool spec §9 calls for.
const defaultPoolSize = 4

// Publisher is the subset of *mqtttransport.Transport the dispatcher needs;
// narrowed to an interface so tests can supply a recording fake.
type Publisher interface {
	Enqueue(topic string, payload []byte, qos byte, retain bool)
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Nudger lets the dispatcher tell the status publisher that something
// observable may have changed (spec §4.7's "nudges the StatusPublisher").
type Nudger interface {
	Nudge()
}

// Info is the static gateway identity answered inline by get_gateway_info.
type Info struct {
	GatewayID      string
	Model          string
	Version        string
	APIVersion     string
}

// Dispatcher wires Codec decode/encode to SinkManager operations and
// publishes exactly one response per accepted request.
type Dispatcher struct {
	codec     *codec.Codec
	sinks     *sinkmanager.Manager
	transport Publisher
	nudger    Nudger
	info      Info
	poolSize  int

	tasks chan func(context.Context)
}

// New builds a Dispatcher. Call Run to start its worker pool and subscribe
// to the request topics of spec §6.
func New(c *codec.Codec, sinks *sinkmanager.Manager, transport Publisher, nudger Nudger, info Info) *Dispatcher {
	return &Dispatcher{
		codec:     c,
		sinks:     sinks,
		transport: transport,
		nudger:    nudger,
		info:      info,
		poolSize:  defaultPoolSize,
		tasks:     make(chan func(context.Context), 64),
	}
}

// Run subscribes to every request topic and runs the worker pool until ctx
// is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.subscribeAll(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.poolSize; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case task := <-d.tasks:
					task(gctx)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) subscribeAll() error {
	subs := []struct {
		kind    codec.Kind
		handler mqtt.MessageHandler
	}{
		{codec.KindRequestGetGatewayInfo, d.onGetGatewayInfo},
		{codec.KindRequestGetConfigs, d.onGetConfigs},
		{codec.KindRequestSetConfig, d.onSetConfig},
		{codec.KindRequestSendData, d.onSendData},
		{codec.KindRequestOtapStatus, d.onOtapStatus},
		{codec.KindRequestOtapLoadScratchpad, d.onOtapLoad},
		{codec.KindRequestOtapProcessScratchpad, d.onOtapProcess},
		{codec.KindRequestOtapSetTargetScratchpad, d.onOtapSetTarget},
	}
	for _, s := range subs {
		topic := codec.SubscriptionTopic(s.kind, d.info.GatewayID)
		if err := d.transport.Subscribe(topic, 2, s.handler); err != nil {
			return err
		}
	}
	return nil
}

// submit hands a task to the worker pool; if the pool is saturated the
// caller (the MQTT library's own receive goroutine) blocks briefly rather
// than dropping the request silently.
func (d *Dispatcher) submit(task func(context.Context)) {
	d.tasks <- task
}

func sinkIDFromTopic(kind codec.Kind, topic string) (string, error) {
	p, err := codec.ParseTopic(kind, topic)
	if err != nil {
		return "", err
	}
	return p.SinkID, nil
}

// onGetGatewayInfo is answered inline (spec §4.7), never deferred to the
// pool, since it touches no bus I/O.
func (d *Dispatcher) onGetGatewayInfo(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeRequestEnvelope(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed get_gateway_info request", zap.Error(err))
		return
	}
	resp := codec.GetGatewayInfoResponse{
		ReqID:             req.ReqID,
		CurrentTimeSEpoch: time.Now().Unix(),
		GatewayModel:      d.info.Model,
		GatewayVersion:    d.info.Version,
		ImplementedAPIVer: d.info.APIVersion,
	}
	topic := codec.GenerateTopic(codec.KindResponseGetGatewayInfo, codec.TopicParams{GatewayID: d.info.GatewayID})
	d.transport.Enqueue(topic, d.codec.EncodeGetGatewayInfoResponse(resp), 2, false)
}

func (d *Dispatcher) onGetConfigs(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeRequestEnvelope(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed get_configs request", zap.Error(err))
		return
	}
	d.submit(func(ctx context.Context) {
		d.respondGetConfigs(ctx, req.ReqID)
	})
}

// respondGetConfigs aggregates every sink's configuration and publishes it
// as the get_configs response for reqID.
func (d *Dispatcher) respondGetConfigs(ctx context.Context, reqID uint32) {
	sinks := d.sinks.GetSinks()
	out := make(map[string]types.SinkConfiguration, len(sinks))
	for _, s := range sinks {
		cfg, _ := s.ReadConfig(ctx)
		out[s.Name()] = cfg
	}
	resp := codec.GetConfigsResponse{ReqID: reqID, Sinks: out}
	topic := codec.GenerateTopic(codec.KindResponseGetConfigs, codec.TopicParams{GatewayID: d.info.GatewayID})
	d.transport.Enqueue(topic, d.codec.EncodeGetConfigsResponse(resp), 2, false)
}

func (d *Dispatcher) onSetConfig(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeSetConfigRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed set_config request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestSetConfig, msg.Topic())
	if err != nil {
		log.Warn("dropping set_config with unparseable topic", zap.Error(err))
		return
	}
	req.SinkID = sinkID
	d.submit(func(ctx context.Context) {
		d.respondSetConfig(ctx, req)
	})
}

// respondSetConfig writes a config patch and replies with the re-read
// configuration.
func (d *Dispatcher) respondSetConfig(ctx context.Context, req codec.SetConfigRequest) {
	s, ok := d.sinks.GetSink(req.SinkID)
	if !ok {
		resp := codec.SetConfigResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: types.ResInvalidSinkID}
		topic := codec.GenerateTopic(codec.KindResponseSetConfig, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeSetConfigResponse(resp), 2, false)
		return
	}

	res := s.WriteConfig(ctx, req.Config)
	cfg, _ := s.ReadConfig(ctx)
	resp := codec.SetConfigResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res, Config: cfg}
	topic := codec.GenerateTopic(codec.KindResponseSetConfig, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
	d.transport.Enqueue(topic, d.codec.EncodeSetConfigResponse(resp), 2, false)

	if d.nudger != nil {
		d.nudger.Nudge()
	}
}

func (d *Dispatcher) onSendData(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeSendDataRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed send_data request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestSendData, msg.Topic())
	if err != nil {
		log.Warn("dropping send_data with unparseable topic", zap.Error(err))
		return
	}
	req.SinkID = sinkID

	// Hop-limit is rejected before dispatch (spec §8 property 8): no task is
	// spawned and the bus is never touched.
	if req.HopLimit > 15 {
		resp := codec.SendDataResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: types.ResInvalidMaxHopCount}
		topic := codec.GenerateTopic(codec.KindResponseSendData, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeSendDataResponse(resp), 2, false)
		return
	}

	d.submit(func(ctx context.Context) {
		res := types.ResInvalidSinkID
		if s, ok := d.sinks.GetSink(req.SinkID); ok {
			res = s.Send(ctx, req.Dest, req.SourceEndpoint, req.DestEndpoint, req.QoS, req.InitialDelayMS, req.UnackCSMA, req.HopLimit, req.Payload)
		}
		resp := codec.SendDataResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res}
		topic := codec.GenerateTopic(codec.KindResponseSendData, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeSendDataResponse(resp), 2, false)
	})
}

func (d *Dispatcher) onOtapStatus(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeOtapStatusRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed otap_status request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestOtapStatus, msg.Topic())
	if err != nil {
		return
	}
	req.SinkID = sinkID
	d.submit(func(ctx context.Context) {
		res := types.ResInvalidSinkID
		var status types.ScratchpadStatus
		if s, ok := d.sinks.GetSink(req.SinkID); ok {
			status, res = s.ScratchpadStatus(ctx)
		}
		resp := codec.OtapStatusResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res, Status: status}
		topic := codec.GenerateTopic(codec.KindResponseOtapStatus, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeOtapStatusResponse(resp), 2, false)
	})
}

func (d *Dispatcher) onOtapLoad(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeOtapLoadScratchpadRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed otap_load_scratchpad request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestOtapLoadScratchpad, msg.Topic())
	if err != nil {
		return
	}
	req.SinkID = sinkID
	d.submit(func(ctx context.Context) {
		res := types.ResInvalidSinkID
		if s, ok := d.sinks.GetSink(req.SinkID); ok {
			res = s.UploadScratchpad(ctx, req.Seq, req.Blob)
		}
		resp := codec.OtapLoadScratchpadResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res}
		topic := codec.GenerateTopic(codec.KindResponseOtapLoadScratchpad, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeOtapLoadScratchpadResponse(resp), 2, false)
		if d.nudger != nil {
			d.nudger.Nudge()
		}
	})
}

func (d *Dispatcher) onOtapProcess(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeOtapProcessScratchpadRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed otap_process_scratchpad request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestOtapProcessScratchpad, msg.Topic())
	if err != nil {
		return
	}
	req.SinkID = sinkID
	d.submit(func(ctx context.Context) {
		res := types.ResInvalidSinkID
		if s, ok := d.sinks.GetSink(req.SinkID); ok {
			res = s.ProcessScratchpad(ctx)
		}
		resp := codec.OtapProcessScratchpadResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res}
		topic := codec.GenerateTopic(codec.KindResponseOtapProcessScratchpad, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeOtapProcessScratchpadResponse(resp), 2, false)
	})
}

func (d *Dispatcher) onOtapSetTarget(_ mqtt.Client, msg mqtt.Message) {
	req, err := d.codec.DecodeOtapSetTargetScratchpadRequest(msg.Payload())
	if err != nil {
		log.Warn("dropping malformed otap_set_target_scratchpad request", zap.Error(err))
		return
	}
	sinkID, err := sinkIDFromTopic(codec.KindRequestOtapSetTargetScratchpad, msg.Topic())
	if err != nil {
		return
	}
	req.SinkID = sinkID
	d.submit(func(ctx context.Context) {
		res := types.ResInvalidSinkID
		if s, ok := d.sinks.GetSink(req.SinkID); ok {
			res = s.SetTargetScratchpad(ctx, req.Target)
		}
		resp := codec.OtapSetTargetScratchpadResponse{ReqID: req.ReqID, SinkID: req.SinkID, Res: res}
		topic := codec.GenerateTopic(codec.KindResponseOtapSetTargetScratchpad, codec.TopicParams{GatewayID: d.info.GatewayID, SinkID: req.SinkID})
		d.transport.Enqueue(topic, d.codec.EncodeOtapSetTargetScratchpadResponse(resp), 2, false)
		if d.nudger != nil {
			d.nudger.Nudge()
		}
	})
}
