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

package broadcast

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEncodeRTC_MatchesScenarioS6 pins the wire shape of spec §8's S6
// scenario: period=1200s, timezone_offset_s=7200, local-clock mode. S6 only
// pins the literal bytes around the timestamp, not the timestamp value
// itself, so the timestamp field is checked structurally.
func TestEncodeRTC_MatchesScenarioS6(t *testing.T) {
	const timestampMS = 1700000000000
	got := encodeRTC(timestampMS, 7200)

	require.Len(t, got, 2+10+6)
	require.Equal(t, []byte{0x01, 0x00}, got[0:2]) // version = 1, LE u16
	require.Equal(t, []byte{0x00, 0x08}, got[2:4]) // type=timestamp_ms, len=8
	require.Equal(t, uint64(timestampMS), binary.LittleEndian.Uint64(got[4:12]))
	require.Equal(t, []byte{0x01, 0x04, 0x20, 0x1C, 0x00, 0x00}, got[12:18]) // type=tz, len=4, 7200 LE i32
}

func TestEncodeKeepAlive_FieldOrderAndSizes(t *testing.T) {
	got := encodeKeepAlive(1, 1700000000000, -300, 60)
	// version TLV (type1,len1,val1) + status (type2,len1) + timestamp
	// (type3,len8) + tz (type4,len2) + interval (type5,len2) = 3+3+10+4+4 = 24
	require.Len(t, got, 24)
	require.Equal(t, uint8(1), got[0])
	require.Equal(t, uint8(1), got[1])
	require.Equal(t, uint8(1), got[2]) // version value
}
