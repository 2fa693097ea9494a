// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"container/list"
	"sync"
	"time"
)

// DecisionCache is a fixed-capacity TTL cache for authorization decisions,
// keyed on the 64-bit input fingerprint. Entries are kept in insertion order;
// when the cache is full an insert first sweeps out expired entries and only
// then falls back to evicting the oldest live one.
//
// Allow decisions are always cacheable. Deny decisions are cached only when
// the cache was built with cacheDenies, since a cached denial can outlive the
// policy state that produced it. Reloading the policy bundle must Clear the
// cache for the same reason.
type DecisionCache struct {
	capacity    int
	ttl         time.Duration
	cacheDenies bool

	mu      sync.Mutex
	entries map[uint64]*list.Element
	order   *list.List // front = oldest insertion

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

type cacheEntry struct {
	key      uint64
	decision Decision
	expires  time.Time
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// NewDecisionCache builds a cache holding at most capacity decisions for ttl
// each. A capacity of zero (or less) disables caching entirely: Get always
// misses and Put is a no-op.
func NewDecisionCache(capacity int, ttl time.Duration, cacheDenies bool) *DecisionCache {
	return &DecisionCache{
		capacity:    capacity,
		ttl:         ttl,
		cacheDenies: cacheDenies,
		entries:     make(map[uint64]*list.Element),
		order:       list.New(),
		now:         time.Now,
	}
}

// Get returns the cached decision for key. A hit past its TTL is treated as
// a miss and the entry is dropped.
func (c *DecisionCache) Get(key uint64) (Decision, bool) {
	if c.capacity <= 0 {
		return Decision{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++

		return Decision{}, false
	}

	ent := el.Value.(*cacheEntry)
	if c.now().After(ent.expires) {
		c.removeLocked(el)
		c.misses++

		return Decision{}, false
	}

	c.hits++

	return ent.decision, true
}

// Put stores a decision for key, evicting as needed. Deny decisions are
// dropped unless the cache was configured to keep them. Storing an existing
// key refreshes its decision and its position in the eviction order.
func (c *DecisionCache) Put(key uint64, d Decision) {
	if c.capacity <= 0 {
		return
	}
	if !d.Allowed && !c.cacheDenies {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.decision = d
		ent.expires = c.now().Add(c.ttl)
		c.order.MoveToBack(el)

		return
	}

	if c.order.Len() >= c.capacity {
		c.evictLocked()
	}

	el := c.order.PushBack(&cacheEntry{
		key:      key,
		decision: d,
		expires:  c.now().Add(c.ttl),
	})
	c.entries[key] = el
}

// evictLocked frees at least one slot: expired entries first, then the
// oldest live entry. Entries are appended with a uniform TTL, so insertion
// order is also expiry order and the sweep can stop at the first live entry.
func (c *DecisionCache) evictLocked() {
	now := c.now()

	evicted := false
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()

		ent := el.Value.(*cacheEntry)
		if !now.After(ent.expires) {
			break
		}

		c.removeLocked(el)
		c.evictions++
		evicted = true
	}

	if evicted {
		return
	}

	if el := c.order.Front(); el != nil {
		c.removeLocked(el)
		c.evictions++
	}
}

func (c *DecisionCache) removeLocked(el *list.Element) {
	ent := el.Value.(*cacheEntry)
	delete(c.entries, ent.key)
	c.order.Remove(el)
}

// Clear drops every entry. Counters survive; they describe the lifetime of
// the cache, not of one policy generation.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]*list.Element)
	c.order.Init()
}

// Len reports the number of live entries, including any that have expired
// but not yet been swept.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Stats snapshots the cache counters.
func (c *DecisionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.order.Len(),
	}
}
