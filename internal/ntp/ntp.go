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

// Package ntp implements a minimal SNTP client (RFC 4330) used as an
// alternative broadcast.TimeSource to the local clock (spec §4.10, §9 Open
// Question 2: "NTP server choice and failure policy are left to
// configuration").
//
// This is one of the few packages in this repository built on the standard
// library alone: no repo in the retrieval pack imports an NTP client, and
// the wire protocol is small and fully self-contained (a 48-byte fixed
// request/response exchange over UDP), unlike the MQTT/Kafka/schema-registry
// protocols the pack's libraries already cover.
package ntp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and the Unix epoch
	packetSize     = 48
)

// Client queries a single NTP server for the current time.
type Client struct {
	Server  string
	Timeout time.Duration
}

// New builds a Client. A zero Timeout defaults to 3s.
func New(server string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{Server: server, Timeout: timeout}
}

// Now performs one SNTP request/response exchange and returns the server's
// transmit timestamp.
func (c *Client) Now(ctx context.Context) (time.Time, error) {
	conn, err := net.Dial("udp", c.Server)
	if err != nil {
		return time.Time{}, fmt.Errorf("ntp: dial %s: %w", c.Server, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return time.Time{}, err
	}

	var req [packetSize]byte
	req[0] = 0x1B // LI=0, VN=3, Mode=3 (client)
	if _, err := conn.Write(req[:]); err != nil {
		return time.Time{}, fmt.Errorf("ntp: write request: %w", err)
	}

	var resp [packetSize]byte
	if _, err := conn.Read(resp[:]); err != nil {
		return time.Time{}, fmt.Errorf("ntp: read response: %w", err)
	}

	secs := binary.BigEndian.Uint32(resp[40:44])
	frac := binary.BigEndian.Uint32(resp[44:48])
	if secs == 0 {
		return time.Time{}, fmt.Errorf("ntp: server returned zero transmit timestamp")
	}

	unixSecs := int64(secs) - ntpEpochOffset
	nanos := int64(float64(frac) / (1 << 32) * 1e9)
	return time.Unix(unixSecs, nanos).UTC(), nil
}
