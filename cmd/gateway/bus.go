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

package main

import (
	"errors"

	"github.com/wirepas/gateway-go/internal/config"
	"github.com/wirepas/gateway-go/internal/sinkbus"
)

// newSinkBus is the seam where a concrete SinkBus binding to the host
// system bus (D-Bus in the original implementation) plugs in. Spec §1
// places that binding out of scope: "the local system-bus binding to sink
// daemons (treated as an opaque SinkBus capability)". This build ships no
// such binding, so the gateway fails fast with a clear error rather than
// silently running against nothing.
func newSinkBus(cfg *config.Config) (sinkbus.Bus, error) {
	return nil, errors.New("gateway: no SinkBus binding compiled into this build; link one against internal/sinkbus.Bus")
}
