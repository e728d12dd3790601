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

// Command gateway is the mesh-to-MQTT gateway entrypoint: it loads the TOML
// configuration of spec §6, wires a SinkBus binding to the Gateway
// composition root (internal/gateway), serves Prometheus metrics, and runs
// until signaled.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wirepas/gateway-go/internal/broadcast"
	"github.com/wirepas/gateway-go/internal/config"
	"github.com/wirepas/gateway-go/internal/gateway"
	"github.com/wirepas/gateway-go/internal/ntp"
)

var (
	configPath string
	metricsAddr string
	ntpServer   string
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Error("gateway exited with error", zap.Error(err))
		return exitCodeOf(err)
	}
	return config.ExitOK
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Bridges locally attached mesh sinks to an MQTT broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/wirepas/gateway.toml", "path to the gateway TOML configuration")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "address the Prometheus /metrics endpoint listens on")
	cmd.Flags().StringVar(&ntpServer, "ntp-server", "", "NTP server to use for the RTC broadcaster; empty uses the local clock")
	return cmd
}

type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func exitCodeOf(err error) int {
	var ec *exitCodeError
	if e, ok := err.(*exitCodeError); ok {
		ec = e
	}
	if ec != nil {
		return ec.code
	}
	return config.ExitTransportFatal
}

func runGateway(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitCodeError{config.ExitConfigInvalid, err}
	}
	if _, _, err := cfg.Validate(); err != nil {
		return &exitCodeError{config.ExitConfigInvalid, err}
	}

	bus, err := newSinkBus(cfg)
	if err != nil {
		return &exitCodeError{config.ExitTransportFatal, err}
	}

	var timeSource broadcast.TimeSource = broadcast.LocalClock{}
	if ntpServer != "" {
		timeSource = ntp.New(ntpServer, 0)
	}

	gw, err := gateway.New(cfg, bus, timeSource)
	if err != nil {
		return &exitCodeError{config.ExitConfigInvalid, err}
	}

	go serveMetrics(metricsAddr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
		return &exitCodeError{config.ExitTransportFatal, err}
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server exited", zap.Error(err))
	}
}
