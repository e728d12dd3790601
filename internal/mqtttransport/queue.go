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

import "sync"

// OutboundItem is one pending publish (spec §3).
type OutboundItem struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// lifoQueue is the outbound publish queue of spec §4.6/§5/§9: LIFO from the
// worker's perspective (the newest item is acted on first, so congestion
// sheds stale traffic rather than the freshest), with a notification channel
// the worker selects on. The notify-on-first-insert, default-branch-on-busy
// idiom is grounded on the teacher's pkg/queues/chan_queue.go ChanQueue,
// adapted here from a plain FIFO channel to a mutex-guarded slice stack
// because a channel cannot be drained LIFO.
type lifoQueue struct {
	mu     sync.Mutex
	items  []OutboundItem
	notify chan struct{}
}

func newLIFOQueue() *lifoQueue {
	return &lifoQueue{notify: make(chan struct{}, 1)}
}

// Push appends item as the new top of stack. It signals notify iff the queue
// was previously empty, mirroring the teacher's "only wake the reader when
// transitioning from idle" rule.
func (q *lifoQueue) Push(item OutboundItem) {
	q.mu.Lock()
	wasEmpty := len(q.items) == 0
	q.items = append(q.items, item)
	q.mu.Unlock()

	if wasEmpty {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Pop removes and returns the most recently pushed item, if any.
func (q *lifoQueue) Pop() (OutboundItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return OutboundItem{}, false
	}
	item := q.items[n-1]
	q.items = q.items[:n-1]
	return item, true
}

// Len reports the number of items not yet popped -- the queue_size
// observable of spec §4.6.
func (q *lifoQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// renotify wakes up the worker again without pushing, used when rate
// limiting deferred a drain attempt.
func (q *lifoQueue) renotify() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
