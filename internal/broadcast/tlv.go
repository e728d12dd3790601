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

// Package broadcast implements the periodic RTC/time and keep-alive TLV
// broadcasters of spec §4.10: background tasks writing a well-known
// endpoint pair on every sink on a schedule, with period compensation and
// per-send retry.
package broadcast

import "encoding/binary"

// BroadcastDest is the mesh broadcast address used by both broadcasters
// (spec §4.10/§6).
const BroadcastDest uint32 = 0xFFFFFFFF

// tlvWriter accumulates type-length-value entries in the little-endian
// layout of spec §6.
type tlvWriter struct {
	buf []byte
}

func (w *tlvWriter) u8(typ uint8, v uint8) {
	w.buf = append(w.buf, typ, 1, v)
}

func (w *tlvWriter) i16(typ uint8, v int16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	w.buf = append(w.buf, typ, 2)
	w.buf = append(w.buf, b[:]...)
}

func (w *tlvWriter) u16(typ uint8, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, typ, 2)
	w.buf = append(w.buf, b[:]...)
}

func (w *tlvWriter) i32(typ uint8, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, typ, 4)
	w.buf = append(w.buf, b[:]...)
}

func (w *tlvWriter) u64(typ uint8, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, typ, 8)
	w.buf = append(w.buf, b[:]...)
}

func (w *tlvWriter) bytes() []byte { return w.buf }

// encodeRTC builds the RTC broadcast payload: u16 version || TLV{0=timestamp_ms, 1=timezone_offset_s}.
func encodeRTC(timestampMS uint64, timezoneOffsetS int32) []byte {
	var version [2]byte
	binary.LittleEndian.PutUint16(version[:], 1)

	w := &tlvWriter{}
	w.u64(0, timestampMS)
	w.i32(1, timezoneOffsetS)

	return append(version[:], w.bytes()...)
}

// encodeKeepAlive builds the keep-alive broadcast payload: a single TLV
// stream carrying version, gateway status, rtc timestamp, timezone offset
// (minutes), and the keep-alive interval (spec §6).
func encodeKeepAlive(gatewayStatus uint8, rtcTimestampMS uint64, timezoneOffsetMN int16, intervalS uint16) []byte {
	w := &tlvWriter{}
	w.u8(1, 1) // version
	w.u8(2, gatewayStatus)
	w.u64(3, rtcTimestampMS)
	w.i16(4, timezoneOffsetMN)
	w.u16(5, intervalS)
	return w.bytes()
}
