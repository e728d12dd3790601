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

// Package mqtttransport implements the single-threaded MQTT worker of spec
// §4.6: one loop draining a LIFO outbound queue onto a paho MQTT client,
// reconnect with exponential backoff and jitter, last-will, and the
// queue_size/waiting_time_s observables the black-hole monitor polls.
//
// The worker-loop/run-on-one-goroutine shape is grounded on the teacher's
// mqSink.runWorker (cdc/sink/mq.go): a ticker-driven select loop flushing a
// batched encoder to a producer, generalized here from "batch then publish
// to Kafka" to "pop newest then publish to MQTT".
package mqtttransport

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config is the subset of spec §6's MQTT configuration surface this package
// consumes directly.
type Config struct {
	Hostname             string
	Port                 int
	Username             string
	Password             string
	ClientID              string
	UseWebsocket          bool
	PersistSession        bool
	ForceUnsecure         bool
	AllowUntrusted        bool
	TLS                   *TLSConfig
	ReconnectDelay        time.Duration // 0 = infinite
	MaxInflightMessages   int           // 0 = unlimited
	RateLimitPPS          int           // 0 = unlimited

	LastWillTopic   string
	LastWillPayload []byte
}

// TLSConfig mirrors the certfile/keyfile/ca_certs/cert_reqs surface of spec
// §6; actual credential loading is out of scope (spec §1) and supplied by
// the caller as parsed material.
type TLSConfig struct {
	CACerts      []byte
	CertFile     []byte
	KeyFile      []byte
	CertRequired bool
	Ciphers      []uint16
}

// Transport is the MQTT worker. Connecting, reconnecting and publishing
// happen on the goroutine running Run; other goroutines call Enqueue or
// Subscribe, or read the observables.
type Transport struct {
	cfg    Config
	client mqtt.Client

	queue *lifoQueue

	connected  atomic.Bool
	lastSubmit atomic.Value // time.Time
	unacked    sync.Map     // mqtt.MessageID -> struct{}

	limiter *rate.Limiter

	onConnect    func()
	onTerminate  func(error)

	reconnect chan struct{}
	stop      chan struct{}
	done      chan struct{}
}

// New constructs a Transport. The worker is not started until Run is called.
func New(cfg Config, onConnect func(), onTerminate func(error)) *Transport {
	t := &Transport{
		cfg:         cfg,
		queue:       newLIFOQueue(),
		onConnect:   onConnect,
		onTerminate: onTerminate,
		reconnect:   make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	t.lastSubmit.Store(time.Time{})
	if cfg.RateLimitPPS > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPPS), cfg.RateLimitPPS)
	}
	return t
}

// Enqueue submits payload for publication. It never blocks: the queue is
// unbounded, matching spec §4.6's LIFO-under-congestion design (bounding it
// would require dropping the newest item, which is the one the spec wants
// kept).
func (t *Transport) Enqueue(topic string, payload []byte, qos byte, retain bool) {
	t.lastSubmit.Store(time.Now())
	t.queue.Push(OutboundItem{Topic: topic, Payload: payload, QoS: qos, Retain: retain})
}

// QueueSize is the number of submitted-but-not-yet-acknowledged items (spec
// §4.6), the primary black-hole-monitor input.
func (t *Transport) QueueSize() int {
	return t.queue.Len() + t.inflightCount()
}

// WaitingTimeS is the number of seconds since the most recent Enqueue, or
// zero if the queue is currently empty (spec §4.6).
func (t *Transport) WaitingTimeS() float64 {
	if t.queue.Len() == 0 {
		return 0
	}
	last := t.lastSubmit.Load().(time.Time)
	if last.IsZero() {
		return 0
	}
	return time.Since(last).Seconds()
}

// Connected reports the current MQTT session state.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Run starts the worker loop and blocks until ctx is cancelled or Stop is
// called. Any unexpected failure is fatal to the transport: the termination
// callback fires and Run returns (spec §4.6).
func (t *Transport) Run(ctx context.Context) {
	defer close(t.done)

	if err := t.connectWithBackoff(ctx); err != nil {
		t.onTerminate(err)
		return
	}
	defer t.client.Disconnect(250)

	drain := make(chan struct{}, 1)
	keepaliveTick := time.NewTicker(time.Second)
	defer keepaliveTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-t.queue.notify:
			t.drainOnce(drain)
		case <-drain:
			t.drainOnce(drain)
		case <-keepaliveTick.C:
			// The 1s slice exists to keep the select alive even with an
			// idle queue, so reconnect/backpressure state stays current
			// for observers polling QueueSize/WaitingTimeS.
		case <-t.reconnect:
			if t.client != nil {
				t.client.Disconnect(250)
			}
			if err := t.connectWithBackoff(ctx); err != nil {
				t.onTerminate(err)
				return
			}
		}
	}
}

// Stop requests the worker loop to exit; it does not wait for it.
func (t *Transport) Stop() {
	close(t.stop)
}

// Done is closed once the worker loop has fully exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) drainOnce(redeliver chan<- struct{}) {
	if t.cfg.MaxInflightMessages > 0 && t.inflightCount() >= t.cfg.MaxInflightMessages {
		return
	}
	if t.limiter != nil && !t.limiter.Allow() {
		delay := t.limiter.Reserve().Delay()
		time.AfterFunc(delay, func() {
			select {
			case redeliver <- struct{}{}:
			default:
			}
		})
		return
	}

	item, ok := t.queue.Pop()
	if !ok {
		return
	}

	token := t.client.Publish(item.Topic, item.QoS, item.Retain, item.Payload)
	if item.QoS > 0 {
		t.trackInflight(token)
	}

	// More items may remain; keep draining until the queue is empty or a
	// limiter/inflight ceiling defers us.
	if t.queue.Len() > 0 {
		t.queue.renotify()
	}
}

func (t *Transport) inflightCount() int {
	n := 0
	t.unacked.Range(func(_, _ interface{}) bool { n++; return true })
	return n
}

func (t *Transport) trackInflight(token mqtt.Token) {
	id := new(struct{})
	t.unacked.Store(id, struct{}{})
	go func() {
		token.Wait()
		t.unacked.Delete(id)
		t.queue.renotify()
	}()
}

// connectWithBackoff performs the first connect attempt, retrying with the
// jittered exponential schedule of spec §9: each attempt delay is drawn
// uniformly from [2^k, 2^(k+1)) seconds, k capped at 5 (so delays top out
// in [32s, 64s)), honouring an overall budget of cfg.ReconnectDelay (0 =
// unbounded, spec §8 property 7).
func (t *Transport) connectWithBackoff(ctx context.Context) error {
	opts := t.buildClientOptions()
	t.client = mqtt.NewClient(opts)

	deadline := time.Time{}
	if t.cfg.ReconnectDelay > 0 {
		deadline = time.Now().Add(t.cfg.ReconnectDelay)
	}

	attempt := 0
	for {
		token := t.client.Connect()
		token.Wait()
		if token.Error() == nil {
			t.connected.Store(true)
			return nil
		}
		log.Warn("mqtt connect failed", zap.Error(token.Error()), zap.Int("attempt", attempt))

		if !deadline.IsZero() && time.Now().After(deadline) {
			return token.Error()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay(attempt)):
		}
		attempt++
	}
}

// reconnectDelay implements spec §9's jittered backoff: a delay drawn
// uniformly from [2^k, 2^(k+1)) seconds, with k = min(attempt, 5).
func reconnectDelay(attempt int) time.Duration {
	k := attempt
	if k > 5 {
		k = 5
	}
	lo := math.Pow(2, float64(k))
	hi := math.Pow(2, float64(k+1))
	return time.Duration((lo + rand.Float64()*(hi-lo)) * float64(time.Second))
}

func (t *Transport) buildClientOptions() *mqtt.ClientOptions {
	scheme := "tcp"
	if t.cfg.UseWebsocket {
		scheme = "ws"
	}
	if !t.cfg.ForceUnsecure && t.cfg.TLS != nil {
		scheme = map[bool]string{true: "wss", false: "ssl"}[t.cfg.UseWebsocket]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(scheme + "://" + t.cfg.Hostname + ":" + portString(t.cfg.Port))
	opts.SetClientID(t.cfg.ClientID)
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetCleanSession(!t.cfg.PersistSession)
	opts.SetAutoReconnect(false) // reconnect is driven by this package, not the client
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	if t.cfg.LastWillTopic != "" {
		opts.SetBinaryWill(t.cfg.LastWillTopic, t.cfg.LastWillPayload, 1, true)
	}
	if tlsCfg := buildTLSConfig(t.cfg.TLS, t.cfg.AllowUntrusted); tlsCfg != nil {
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		t.connected.Store(true)
		if t.onConnect != nil {
			t.onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.connected.Store(false)
		log.Warn("mqtt connection lost", zap.Error(err))
		select {
		case t.reconnect <- struct{}{}:
		default:
			// A reconnect is already queued; the worker loop coalesces bursts
			// of ConnectionLostHandler calls into a single reconnect attempt.
		}
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Info("mqtt reconnecting")
	})

	return opts
}

// Subscribe installs a QoS-and-handler pair for topic, used by the
// dispatcher to subscribe to the request topics of spec §6.
func (t *Transport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := t.client.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}
