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

package ntp

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startFakeServer answers every request with a fixed transmit timestamp and
// returns the address to dial.
func startFakeServer(t *testing.T, transmitSecs uint32) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, packetSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil || n == 0 {
				return
			}
			var resp [packetSize]byte
			binary.BigEndian.PutUint32(resp[40:44], transmitSecs)
			if _, err := conn.WriteToUDP(resp[:], addr); err != nil {
				return
			}
		}
	}()

	return conn.LocalAddr().String()
}

func TestClient_Now_ParsesTransmitTimestamp(t *testing.T) {
	const unixSecs = 1700000000
	addr := startFakeServer(t, uint32(unixSecs+ntpEpochOffset))

	c := New(addr, time.Second)
	got, err := c.Now(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(unixSecs), got.Unix())
}

func TestClient_Now_ZeroTimestampIsError(t *testing.T) {
	addr := startFakeServer(t, 0)
	c := New(addr, time.Second)
	_, err := c.Now(context.Background())
	require.Error(t, err)
}
