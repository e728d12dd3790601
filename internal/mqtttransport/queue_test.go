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

	"github.com/stretchr/testify/require"
)

func TestLIFOQueue_PopsNewestFirst(t *testing.T) {
	q := newLIFOQueue()
	q.Push(OutboundItem{Topic: "a"})
	q.Push(OutboundItem{Topic: "b"})
	q.Push(OutboundItem{Topic: "c"})

	require.Equal(t, 3, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "c", item.Topic)

	item, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "b", item.Topic)

	item, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "a", item.Topic)

	_, ok = q.Pop()
	require.False(t, ok)
}

func TestLIFOQueue_NotifiesOnlyOnEmptyToNonEmptyTransition(t *testing.T) {
	q := newLIFOQueue()

	q.Push(OutboundItem{Topic: "a"})
	select {
	case <-q.notify:
	default:
		t.Fatal("expected notification on first push into an empty queue")
	}

	q.Push(OutboundItem{Topic: "b"})
	select {
	case <-q.notify:
		t.Fatal("did not expect a second notification while the queue was already non-empty")
	default:
	}
}
