// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package obfuscator

import (
	"container/list"
	"sync"
)

// factorCache is a fixed-size LRU of factorization results keyed by the
// canonical decimal input and the unique flag.
type factorCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	lru     *list.List
}

type factorEntry struct {
	key     string
	factors []string
}

func newFactorCache(max int) *factorCache {
	return &factorCache{
		max:     max,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// get returns a copy of the cached factors.
func (c *factorCache) get(key string) ([]string, bool) {
	if c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		factorCacheLookups.WithLabelValues(cacheMiss).Inc()
		return nil, false
	}
	factorCacheLookups.WithLabelValues(cacheHit).Inc()
	c.lru.MoveToFront(el)
	return cloneFactors(el.Value.(*factorEntry).factors), true
}

func (c *factorCache) put(key string, factors []string) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*factorEntry).factors = factors
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&factorEntry{key: key, factors: factors})
	for c.lru.Len() > c.max {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*factorEntry).key)
	}
}

func (c *factorCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// cloneFactors copies fs. The result is never nil so an empty factor
// list still encodes as [].
func cloneFactors(fs []string) []string {
	return append(make([]string, 0, len(fs)), fs...)
}
