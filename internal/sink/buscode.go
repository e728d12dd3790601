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

package sink

import (
	"errors"

	"github.com/wirepas/gateway-go/internal/sinkbus"
	"github.com/wirepas/gateway-go/internal/types"
)

// busCodeTable is the fixed, total mapping from the bus's numeric return
// codes to the gateway result code taxonomy (spec §4.3).
var busCodeTable = map[int]types.GatewayResultCode{
	0:  types.ResOK,
	1:  types.ResInvalidSinkState,
	2:  types.ResInvalidSinkState,
	3:  types.ResInvalidSinkState,
	4:  types.ResInvalidParam,
	9:  types.ResInvalidSinkState,
	10: types.ResInvalidRole,
	11: types.ResInvalidDestAddress,
	16: types.ResAccessDenied,
	17: types.ResInvalidDataPayload,
	19: types.ResNoScratchpadPresent,
	22: types.ResInvalidDiagInterval,
	23: types.ResInvalidSequenceNumber,
	26: types.ResInvalidScratchpad,
	27: types.ResInvalidRebootDelay,
}

// mapBusError converts whatever the bus proxy returned into a
// GatewayResultCode. A nil error maps to OK; a *sinkbus.BusError is looked
// up in busCodeTable (unmapped codes and any other error shape become
// INTERNAL_ERROR per spec §4.3).
func mapBusError(err error) types.GatewayResultCode {
	if err == nil {
		return types.ResOK
	}
	var be *sinkbus.BusError
	if errors.As(err, &be) {
		if code, ok := busCodeTable[be.Code]; ok {
			return code
		}
		return types.ResInternalError
	}
	return types.ResInternalError
}
