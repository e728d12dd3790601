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

// Package config loads and validates the gateway's configuration surface
// (spec §6): MQTT connection parameters, gateway identity, buffering
// thresholds, and debug flags, plus the endpoint-filter grammar and its
// startup-fatal disjointness invariant.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// MQTT is the broker connection surface of spec §6.
type MQTT struct {
	Hostname            string   `toml:"hostname"`
	Port                int      `toml:"port"`
	Username            string   `toml:"username"`
	Password            string   `toml:"password"`
	CACerts             string   `toml:"ca_certs"`
	CertFile            string   `toml:"certfile"`
	KeyFile             string   `toml:"keyfile"`
	CertReqs            string   `toml:"cert_reqs"` // REQUIRED | OPTIONAL | NONE
	TLSVersion          string   `toml:"tls_version"`
	Ciphers             []string `toml:"ciphers"`
	PersistSession      bool     `toml:"persist_session"`
	ForceUnsecure       bool     `toml:"force_unsecure"`
	AllowUntrusted      bool     `toml:"allow_untrusted"`
	ReconnectDelayS     int      `toml:"reconnect_delay_s"`
	MaxInflightMessages int      `toml:"max_inflight_messages"`
	RateLimitPPS        int      `toml:"rate_limit_pps"`
	UseWebsocket        bool     `toml:"use_websocket"`
}

// Gateway is the identity/endpoint-filter surface of spec §6.
type Gateway struct {
	GatewayID         string `toml:"gateway_id"`
	GatewayModel      string `toml:"gateway_model"`
	GatewayVersion    string `toml:"gateway_version"`
	FullPython        bool   `toml:"full_python"` // accepted, ignored (spec §6)
	IgnoredEndpoints  string `toml:"ignored_endpoints"`
	WhitenedEndpoints string `toml:"whitened_endpoints"`
}

// Buffering is the black-hole monitor's threshold surface of spec §6.
type Buffering struct {
	MaxBufferedPackets     int  `toml:"max_buffered_packets"`
	MaxDelayWithoutPublish int  `toml:"max_delay_without_publish"`
	MinimumSinkCost        int  `toml:"minimum_sink_cost"`
	StopStack              bool `toml:"stop_stack"`
}

// Debug holds the debug surface of spec §6.
type Debug struct {
	IncrDataEventID bool `toml:"incr_data_event_id"`
}

// Config is the full TOML-loaded configuration object.
type Config struct {
	MQTT      MQTT      `toml:"mqtt"`
	Gateway   Gateway   `toml:"gateway"`
	Buffering Buffering `toml:"buffering"`
	Debug     Debug     `toml:"debug"`
}

// Load decodes path as TOML into a Config. Grounded on the BurntSushi/toml
// decode-into-struct idiom used throughout the pack's own config loaders.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// MaxDelayWithoutPublishDuration returns the buffering threshold as a Duration.
func (b Buffering) MaxDelayWithoutPublishDuration() time.Duration {
	return time.Duration(b.MaxDelayWithoutPublish) * time.Second
}

// ReconnectDelay returns the MQTT reconnect budget as a Duration (0 = infinite).
func (m MQTT) ReconnectDelay() time.Duration {
	return time.Duration(m.ReconnectDelayS) * time.Second
}

// Validate enforces the startup-fatal invariants of spec §6/§8 property 2:
// the ignored and whitened endpoint sets must be disjoint.
func (c *Config) Validate() (ignored, whitened map[int]struct{}, err error) {
	ignored, err = ParseEndpointList(c.Gateway.IgnoredEndpoints)
	if err != nil {
		return nil, nil, fmt.Errorf("config: ignored_endpoints: %w", err)
	}
	whitened, err = ParseEndpointList(c.Gateway.WhitenedEndpoints)
	if err != nil {
		return nil, nil, fmt.Errorf("config: whitened_endpoints: %w", err)
	}
	for ep := range ignored {
		if _, ok := whitened[ep]; ok {
			return nil, nil, fmt.Errorf("config: endpoint %d present in both ignored_endpoints and whitened_endpoints", ep)
		}
	}
	return ignored, whitened, nil
}
