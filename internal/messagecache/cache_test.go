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

package messagecache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wirepas/gateway-go/internal/messagecache"
)

func TestAddContainsWindow(t *testing.T) {
	c := messagecache.New(50*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	require.True(t, c.Add(1))
	require.True(t, c.Contains(1))
	require.False(t, c.Add(1), "refreshing a fresh entry should not report new")

	time.Sleep(120 * time.Millisecond)
	require.False(t, c.Contains(1))
	require.True(t, c.Add(1), "stale entry should be treated as new again")
}

func TestSizeShrinksAfterCleanup(t *testing.T) {
	c := messagecache.New(30*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	c.Add(1)
	c.Add(2)
	require.Equal(t, 2, c.Size())

	require.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)
}
