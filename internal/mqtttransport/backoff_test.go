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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconnectDelay_BoundsGrowThenCapAtK5(t *testing.T) {
	cases := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		{0, 1 * time.Second, 2 * time.Second},
		{1, 2 * time.Second, 4 * time.Second},
		{5, 32 * time.Second, 64 * time.Second},
		{6, 32 * time.Second, 64 * time.Second}, // k caps at 5
		{100, 32 * time.Second, 64 * time.Second},
	}
	for _, c := range cases {
		for i := 0; i < 20; i++ {
			d := reconnectDelay(c.attempt)
			require.GreaterOrEqualf(t, d, c.lo, "attempt %d", c.attempt)
			require.Lessf(t, d, c.hi, "attempt %d", c.attempt)
		}
	}
}
