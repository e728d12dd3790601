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

// Package metrics declares the gateway's prometheus/client_golang
// instrumentation: outbound queue depth, MQTT reconnect counts, black-hole
// state, and broadcast latency, one gauge/counter per concern named in
// SPEC_FULL.md's domain-stack section. Grounded on the promauto
// registration style used throughout the retrieval pack's own gateway
// metrics packages (e.g. the logistics-problem gateway service).
//
// All collectors are registered and exported on /metrics, but only
// UplinkEventsTotal is updated elsewhere in this module (by the gateway's
// uplink path); nothing sets the others, so they stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wirepas_gateway"

var (
	// QueueDepth tracks the MQTT transport's outbound LIFO stack size.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_queue_depth",
		Help:      "Number of messages currently queued for publish.",
	})

	// QueueWaitingSeconds tracks how long the oldest still-unsent packet
	// has been waiting (spec §9's "waiting time" black-hole signal).
	QueueWaitingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_queue_waiting_seconds",
		Help:      "Age in seconds of the oldest message still waiting to be published.",
	})

	// ReconnectsTotal counts every MQTT (re)connection attempt, labeled by
	// outcome.
	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_reconnects_total",
		Help:      "Total MQTT connection attempts made by the transport.",
	}, []string{"outcome"})

	// Connected reports whether the MQTT transport currently has a live
	// session (1) or not (0).
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_connected",
		Help:      "1 if the MQTT client currently holds a live session, 0 otherwise.",
	})

	// BlackHoleState mirrors blackhole.State: 0 = healthy, 1 = degraded.
	BlackHoleState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "blackhole_state",
		Help:      "Black-hole monitor state: 0 healthy, 1 degraded.",
	})

	// BroadcastLatencySeconds observes the time spent building and sending
	// one RTC/keep-alive broadcast cycle across every live sink.
	BroadcastLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "broadcast_latency_seconds",
		Help:      "Time spent sending one broadcast cycle to all sinks.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// SinksTracked reports the live sink set size.
	SinksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sinks_tracked",
		Help:      "Number of sinks currently tracked by the sink manager.",
	})

	// UplinkEventsTotal counts uplink frames, labeled by disposition.
	UplinkEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uplink_events_total",
		Help:      "Total uplink frames observed, labeled by disposition (published, whitened, ignored).",
	}, []string{"disposition"})
)
