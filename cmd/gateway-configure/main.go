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

// Command gateway-configure is a local provisioning tool: it talks directly
// to the SinkBus (no MQTT, no broker) to list sinks and push one-shot
// configuration changes, the same shape as the original implementation's
// configure_node.py "list"/"set" tool.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/sinkmanager"
	"github.com/wirepas/gateway-go/internal/types"
)

var (
	sinkName          string
	nodeAddressStr    string
	nodeRoleStr       string
	networkAddressStr string
	networkChannelStr string
	authKeyHex        string
	cipherKeyHex      string
	startStr          string
)

func main() {
	root := &cobra.Command{
		Use:   "gateway-configure",
		Short: "List or set local sink configuration via the SinkBus",
	}
	root.PersistentFlags().StringVarP(&sinkName, "sink-name", "s", "", "sink name as configured in the bus, e.g. sink0")
	root.PersistentFlags().StringVarP(&nodeAddressStr, "node-address", "n", "", "node address, decimal or 0x-prefixed hex")
	root.PersistentFlags().StringVarP(&nodeRoleStr, "node-role", "r", "", `node role, e.g. "sink csma-ca" or "router autorole"`)
	root.PersistentFlags().StringVarP(&networkAddressStr, "network-address", "N", "", "network address, decimal or 0x-prefixed hex")
	root.PersistentFlags().StringVarP(&networkChannelStr, "network-channel", "c", "", "network channel, decimal or 0x-prefixed hex")
	root.PersistentFlags().StringVarP(&authKeyHex, "authentication-key", "a", "", "128-bit authentication key as hex, e.g. 112233...FF")
	root.PersistentFlags().StringVarP(&cipherKeyHex, "cipher-key", "k", "", "128-bit cipher key as hex")
	root.PersistentFlags().StringVarP(&startStr, "start", "S", "", "start (true) or stop (false) the sink after configuring")

	root.AddCommand(newListCmd(), newSetCmd())

	if err := root.Execute(); err != nil {
		fmt.Println("error:", err)
	}
}

// newSinkBus is the seam where a concrete SinkBus binding plugs in. No
// binding is compiled into this build, so every command fails here.
func newSinkBus() (sinkbus.Bus, error) {
	return nil, fmt.Errorf("gateway-configure: no SinkBus binding compiled into this build; link one against internal/sinkbus.Bus")
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every sink's current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := newSinkBus()
			if err != nil {
				return err
			}
			return listSinks(cmd.Context(), bus)
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Apply a configuration patch to one sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sinkName == "" {
				return fmt.Errorf("gateway-configure: --sink-name is required for set")
			}
			bus, err := newSinkBus()
			if err != nil {
				return err
			}
			patch, err := buildPatch()
			if err != nil {
				return err
			}
			return setConfig(cmd.Context(), bus, sinkName, patch)
		},
	}
}

func listSinks(ctx context.Context, bus sinkbus.Bus) error {
	mgr := sinkmanager.New(ctx, bus, sinkmanager.Callbacks{})
	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}
	for _, s := range mgr.GetSinks() {
		cfg, partial := s.ReadConfig(ctx)
		fmt.Printf("============== [%s] ===============\n", s.Name())
		printConfig(cfg)
		if partial {
			fmt.Println("(partial read: some attributes could not be fetched)")
		}
		fmt.Println("===================================")
	}
	return nil
}

func printConfig(cfg types.SinkConfiguration) {
	if cfg.Started != nil {
		fmt.Printf("started: %v\n", *cfg.Started)
	}
	if cfg.NodeAddress != nil {
		fmt.Printf("node_address: %d\n", *cfg.NodeAddress)
	}
	if cfg.NodeRole != nil {
		fmt.Printf("node_role: base=0x%x csma_ca=%v autorole=%v\n", cfg.NodeRole.Base, cfg.NodeRole.CSMACA, cfg.NodeRole.Autorole)
	}
	if cfg.NetworkAddress != nil {
		fmt.Printf("network_address: %d\n", *cfg.NetworkAddress)
	}
	if cfg.NetworkChannel != nil {
		fmt.Printf("network_channel: %d\n", *cfg.NetworkChannel)
	}
	if cfg.AppConfigData != nil {
		fmt.Printf("app_config_data: %s\n", hex.EncodeToString(cfg.AppConfigData))
	}
}

func setConfig(ctx context.Context, bus sinkbus.Bus, name string, patch types.SinkConfiguration) error {
	mgr := sinkmanager.New(ctx, bus, sinkmanager.Callbacks{})
	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}
	s, ok := mgr.GetSink(name)
	if !ok {
		return fmt.Errorf("gateway-configure: cannot retrieve sink object with name %s", name)
	}
	res := s.WriteConfig(ctx, patch)
	fmt.Printf("Configuration done with result = %s\n", res)
	return nil
}

func buildPatch() (types.SinkConfiguration, error) {
	var patch types.SinkConfiguration

	if nodeAddressStr != "" {
		v, err := parseUintFlexible(nodeAddressStr, 32)
		if err != nil {
			return patch, fmt.Errorf("--node-address: %w", err)
		}
		u := uint32(v)
		patch.NodeAddress = &u
	}
	if nodeRoleStr != "" {
		role, err := parseNodeRole(nodeRoleStr)
		if err != nil {
			return patch, err
		}
		patch.NodeRole = &role
	}
	if networkAddressStr != "" {
		v, err := parseUintFlexible(networkAddressStr, 32)
		if err != nil {
			return patch, fmt.Errorf("--network-address: %w", err)
		}
		u := uint32(v)
		patch.NetworkAddress = &u
	}
	if networkChannelStr != "" {
		v, err := parseUintFlexible(networkChannelStr, 8)
		if err != nil {
			return patch, fmt.Errorf("--network-channel: %w", err)
		}
		u := uint8(v)
		patch.NetworkChannel = &u
	}
	if authKeyHex != "" {
		key, err := parseKey(authKeyHex)
		if err != nil {
			return patch, fmt.Errorf("--authentication-key: %w", err)
		}
		patch.AuthenticationKey = key
	}
	if cipherKeyHex != "" {
		key, err := parseKey(cipherKeyHex)
		if err != nil {
			return patch, fmt.Errorf("--cipher-key: %w", err)
		}
		patch.CipherKey = key
	}
	if startStr != "" {
		v, err := parseBool(startStr)
		if err != nil {
			return patch, fmt.Errorf("--start: %w", err)
		}
		patch.Started = &v
	}
	return patch, nil
}

// parseUintFlexible accepts both decimal and 0x-prefixed hex, matching
// configure_node.py's int(param_str, 0) convention.
func parseUintFlexible(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func parseKey(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	key, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, err
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("key is not 128 bits long")
	}
	return key, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "t", "y", "1":
		return true, nil
	case "no", "false", "f", "n", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("boolean value expected")
}

// parseNodeRole mirrors configure_node.py's NodeRole.from_string: a base
// role (sink/router/non-router) plus optional csma-ca/autorole flags, all
// as one free-form string.
func parseNodeRole(s string) (types.NodeRole, error) {
	lower := strings.ToLower(s)
	var base uint8
	switch {
	case strings.Contains(lower, "sink"):
		base = 0x08 // matches internal/sink's isSinkRole base-bit invariant
	case strings.Contains(lower, "non-router"):
		base = 0x03
	case strings.Contains(lower, "router"):
		base = 0x02
	default:
		return types.NodeRole{}, fmt.Errorf("cannot determine base role from %q", s)
	}
	return types.NodeRole{
		Base:     base,
		CSMACA:   strings.Contains(lower, "csma-ca"),
		Autorole: strings.Contains(lower, "autorole"),
	}, nil
}
