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

package sinkbus

import (
	"context"
	"sync"
)

// Fake is an in-memory Bus used by the rest of the module's unit tests. It
// keeps one attribute map per sink name and lets tests drive appear/
// disappear/uplink events synchronously.
type Fake struct {
	mu         sync.Mutex
	attrs      map[string]map[Attribute]interface{}
	stackState map[string]bool
	stored     map[string]StoredScratchpad
	processed  map[string]ProcessedScratchpad
	target     map[string]TargetScratchpad
	hasTarget  map[string]bool

	lifecycle LifecycleCallbacks
	uplink    func(UplinkFrame)

	// FailNextCall, if non-zero, is returned (and cleared) by the next
	// proxy call for the named sink, keyed "name:call".
	FailNextCall map[string]int
}

// NewFake returns an empty fake bus.
func NewFake() *Fake {
	return &Fake{
		attrs:        make(map[string]map[Attribute]interface{}),
		stackState:   make(map[string]bool),
		stored:       make(map[string]StoredScratchpad),
		processed:    make(map[string]ProcessedScratchpad),
		target:       make(map[string]TargetScratchpad),
		hasTarget:    make(map[string]bool),
		FailNextCall: make(map[string]int),
	}
}

// AddSink registers a sink with a default attribute set and fires OnAppear.
func (f *Fake) AddSink(name, owner string) {
	f.mu.Lock()
	f.attrs[name] = map[Attribute]interface{}{
		AttrStarted:    false,
		AttrAreKeysSet: false,
	}
	f.stackState[name] = false
	cb := f.lifecycle.OnAppear
	f.mu.Unlock()
	if cb != nil {
		cb(name, owner)
	}
}

// RemoveSink fires OnDisappear and drops all state for name.
func (f *Fake) RemoveSink(name string) {
	f.mu.Lock()
	delete(f.attrs, name)
	delete(f.stackState, name)
	cb := f.lifecycle.OnDisappear
	f.mu.Unlock()
	if cb != nil {
		cb(name)
	}
}

// Deliver injects an uplink frame as if it arrived from the bus.
func (f *Fake) Deliver(frame UplinkFrame) {
	f.mu.Lock()
	cb := f.uplink
	f.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

func (f *Fake) failCode(name, call string) int {
	key := name + ":" + call
	code := f.FailNextCall[key]
	if code != 0 {
		delete(f.FailNextCall, key)
	}
	return code
}

func (f *Fake) ListSinks(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.attrs))
	for name := range f.attrs {
		out = append(out, name)
	}
	return out, nil
}

func (f *Fake) AttachLifecycle(cb LifecycleCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle = cb
}

func (f *Fake) AttachUplink(cb func(UplinkFrame)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uplink = cb
}

func (f *Fake) ReadAttribute(ctx context.Context, name string, attr Attribute) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "read"); code != 0 {
		return nil, NewBusError("readAttribute", code)
	}
	m, ok := f.attrs[name]
	if !ok {
		return nil, NewBusError("readAttribute", 1)
	}
	v, ok := m[attr]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *Fake) WriteAttribute(ctx context.Context, name string, attr Attribute, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "write"); code != 0 {
		return NewBusError("writeAttribute", code)
	}
	m, ok := f.attrs[name]
	if !ok {
		return NewBusError("writeAttribute", 1)
	}
	m[attr] = value
	if attr == AttrStarted {
		f.stackState[name] = value.(bool)
	}
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, name string, dst uint32, srcEp, dstEp uint8, qos uint8, initialDelayMS uint32, unackCSMA bool, hopLimit uint8, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "send"); code != 0 {
		return NewBusError("sendMessage", code)
	}
	if _, ok := f.attrs[name]; !ok {
		return NewBusError("sendMessage", 1)
	}
	return nil
}

func (f *Fake) SetStackState(ctx context.Context, name string, started bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "stackState"); code != 0 {
		return NewBusError("setStackState", code)
	}
	if _, ok := f.attrs[name]; !ok {
		return NewBusError("setStackState", 1)
	}
	f.stackState[name] = started
	f.attrs[name][AttrStarted] = started
	return nil
}

func (f *Fake) GetAppConfig(ctx context.Context, name string) (uint8, uint16, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.attrs[name]
	if !ok {
		return 0, 0, nil, NewBusError("getAppConfig", 1)
	}
	seq, _ := m[AttrAppConfigSeq].(uint8)
	diag, _ := m[AttrAppConfigDiag].(uint16)
	data, _ := m[AttrAppConfigData].([]byte)
	return seq, diag, data, nil
}

func (f *Fake) SetAppConfig(ctx context.Context, name string, seq uint8, diag uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "setAppConfig"); code != 0 {
		return NewBusError("setAppConfig", code)
	}
	m, ok := f.attrs[name]
	if !ok {
		return NewBusError("setAppConfig", 1)
	}
	m[AttrAppConfigSeq] = seq
	m[AttrAppConfigDiag] = diag
	m[AttrAppConfigData] = data
	return nil
}

func (f *Fake) GetScratchpadStatus(ctx context.Context, name string) (StoredScratchpad, ProcessedScratchpad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "scratchpadStatus"); code != 0 {
		return StoredScratchpad{}, ProcessedScratchpad{}, NewBusError("getScratchpadStatus", code)
	}
	return f.stored[name], f.processed[name], nil
}

func (f *Fake) UploadScratchpad(ctx context.Context, name string, seq uint8, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "upload"); code != 0 {
		return NewBusError("uploadScratchpad", code)
	}
	if len(blob) == 0 {
		f.stored[name] = StoredScratchpad{}
		return nil
	}
	f.stored[name] = StoredScratchpad{Seq: seq, Len: uint32(len(blob)), Type: 1}
	return nil
}

func (f *Fake) ProcessScratchpad(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "process"); code != 0 {
		return NewBusError("processScratchpad", code)
	}
	st := f.stored[name]
	f.processed[name] = ProcessedScratchpad{Seq: st.Seq, CRC: st.CRC, Len: st.Len}
	return nil
}

func (f *Fake) GetTargetScratchpad(ctx context.Context, name string) (TargetScratchpad, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target[name], f.hasTarget[name], nil
}

func (f *Fake) SetTargetScratchpad(ctx context.Context, name string, target TargetScratchpad) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if code := f.failCode(name, "setTarget"); code != 0 {
		return NewBusError("setTargetScratchpad", code)
	}
	f.target[name] = target
	f.hasTarget[name] = true
	return nil
}

var _ Bus = (*Fake)(nil)
