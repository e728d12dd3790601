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

// Package messagecache implements the bounded, time-windowed request-id
// cache of spec §4.5: infrastructure for at-most-once request handling,
// available for future dedup (spec §9 Open Question 4) but not wired into
// the dispatcher by this module.
//
// The id->insertion-time map is indexed a second time by a
// github.com/google/btree ordered tree keyed on insertion time, so the
// periodic cleaner can walk only the stale prefix instead of scanning every
// entry -- the same shape the teacher's disk-backed merge sorter
// (cdc/puller/unified_sorter.go) uses a heap for: keep the eviction
// candidate set ordered so the next one to go is always cheap to find.
package messagecache

import (
	"sync"
	"time"

	"github.com/google/btree"
)

type entry struct {
	id        uint64
	insertedAt time.Time
}

// Less orders entries by insertion time, then id, so the btree gives a
// stable ascending walk over "oldest first".
func (e *entry) Less(than btree.Item) bool {
	other := than.(*entry)
	if e.insertedAt.Equal(other.insertedAt) {
		return e.id < other.id
	}
	return e.insertedAt.Before(other.insertedAt)
}

// Cache is the bounded time-windowed set of recently seen request ids.
type Cache struct {
	window time.Duration
	period time.Duration

	mu      sync.Mutex
	byID    map[uint64]*entry
	ordered *btree.BTree

	stop chan struct{}
	done chan struct{}
}

// New builds a Cache with eviction window and a cleanup period <= window.
func New(window, period time.Duration) *Cache {
	if period > window {
		period = window
	}
	c := &Cache{
		window:  window,
		period:  period,
		byID:    make(map[uint64]*entry),
		ordered: btree.New(32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.cleanLoop()
	return c
}

// Close stops the background cleaner.
func (c *Cache) Close() {
	close(c.stop)
	<-c.done
}

// Add inserts id if absent or stale, returning true iff it is now considered
// new (spec §4.5): a fresh existing entry only has its timestamp refreshed
// and returns false; a stale or missing entry is (re)inserted and returns
// true.
func (c *Cache) Add(id uint64) bool {
	return c.addAt(id, time.Now())
}

func (c *Cache) addAt(id uint64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byID[id]
	if ok && now.Sub(existing.insertedAt) < c.window {
		c.ordered.Delete(existing)
		existing.insertedAt = now
		c.ordered.ReplaceOrInsert(existing)
		return false
	}

	if ok {
		c.ordered.Delete(existing)
	}
	e := &entry{id: id, insertedAt: now}
	c.byID[id] = e
	c.ordered.ReplaceOrInsert(e)
	return true
}

// Contains reports whether id is present and not yet stale.
func (c *Cache) Contains(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return false
	}
	return time.Since(e.insertedAt) < c.window
}

// Size returns the number of entries currently tracked, stale or not
// (stale entries are removed on the next cleanup tick, per spec §4.5).
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

func (c *Cache) cleanLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictStale(time.Now())
		}
	}
}

func (c *Cache) evictStale(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.window)
	for {
		item := c.ordered.Min()
		if item == nil {
			return
		}
		e := item.(*entry)
		if e.insertedAt.After(cutoff) {
			return
		}
		c.ordered.Delete(e)
		delete(c.byID, e.id)
	}
}
