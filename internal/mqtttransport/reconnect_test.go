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

package mqtttransport

import "testing"

// TestReconnectChannel_Coalesces guards the worker loop's mid-session
// recovery path (spec §4.6, §1 "protect the mesh against backend
// outages"): a burst of ConnectionLostHandler calls must collapse into a
// single pending reconnect attempt rather than blocking or queuing up.
func TestReconnectChannel_Coalesces(t *testing.T) {
	tr := New(Config{}, nil, nil)

	select {
	case tr.reconnect <- struct{}{}:
	default:
		t.Fatal("expected room for the first pending reconnect signal")
	}

	select {
	case tr.reconnect <- struct{}{}:
		t.Fatal("a second signal should not queue while one is already pending")
	default:
	}

	<-tr.reconnect
	select {
	case tr.reconnect <- struct{}{}:
	default:
		t.Fatal("expected room again once the pending signal was drained")
	}
}
