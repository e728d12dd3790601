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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEndpointList(t *testing.T) {
	got, err := ParseEndpointList("1, 5, 10-12")
	require.NoError(t, err)
	require.Equal(t, map[int]struct{}{1: {}, 5: {}, 10: {}, 11: {}, 12: {}}, got)

	got, err = ParseEndpointList("")
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = ParseEndpointList("[78,79]")
	require.NoError(t, err)
	require.Equal(t, map[int]struct{}{78: {}, 79: {}}, got)

	_, err = ParseEndpointList("10-5")
	require.Error(t, err)

	_, err = ParseEndpointList("abc")
	require.Error(t, err)
}

// TestValidate_RejectsOverlappingFilters covers spec §8 property 2: the
// ignored and whitened endpoint sets must be disjoint at startup.
func TestValidate_RejectsOverlappingFilters(t *testing.T) {
	cfg := &Config{Gateway: Gateway{
		IgnoredEndpoints:  "1,2,3",
		WhitenedEndpoints: "3,4,5",
	}}
	_, _, err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_AcceptsDisjointFilters(t *testing.T) {
	cfg := &Config{Gateway: Gateway{
		IgnoredEndpoints:  "1,2,3",
		WhitenedEndpoints: "4,5",
	}}
	ignored, whitened, err := cfg.Validate()
	require.NoError(t, err)
	require.Len(t, ignored, 3)
	require.Len(t, whitened, 2)
}

func TestLoad_DecodesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.toml")
	body := `
[mqtt]
hostname = "broker.example.com"
port = 8883
reconnect_delay_s = 300
rate_limit_pps = 50

[gateway]
gateway_id = "gw-1"
ignored_endpoints = "1-3"
whitened_endpoints = "78"

[buffering]
max_buffered_packets = 100
stop_stack = true

[debug]
incr_data_event_id = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "broker.example.com", cfg.MQTT.Hostname)
	require.Equal(t, 8883, cfg.MQTT.Port)
	require.Equal(t, "gw-1", cfg.Gateway.GatewayID)
	require.True(t, cfg.Buffering.StopStack)
	require.True(t, cfg.Debug.IncrDataEventID)
}
