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

import "fmt"

// BusError is the structured error the bus delivers for a failed proxy call
// (spec §4.2/§4.3): a numeric return code from the underlying mesh library,
// tagged with the call that produced it.
type BusError struct {
	Call string
	Code int
}

func (e *BusError) Error() string {
	return fmt.Sprintf("[%s]: C Mesh Lib ret = %d", e.Call, e.Code)
}

// NewBusError builds the structured error the Sink facade's result-code
// mapping (spec §4.3) knows how to unwrap.
func NewBusError(call string, code int) error {
	if code == 0 {
		return nil
	}
	return &BusError{Call: call, Code: code}
}
