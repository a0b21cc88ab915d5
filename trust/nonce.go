// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package trust

import (
	"sync"
	"time"
)

// nonceCache is the last-N dedup cache spec.md §4.4 names for ingest
// replay rejection, keyed on (issuer, nonce). Shaped directly on the
// teacher's pkg/agent/core/message/nonce.Manager (TTL map plus a
// background cleanup ticker), generalized from a single global nonce
// space to one keyed per issuer.
type nonceCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	seen    map[string]time.Time
	tick    *time.Ticker
	stop    chan struct{}
}

func newNonceCache(ttl, cleanupInterval time.Duration) *nonceCache {
	c := &nonceCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		tick: time.NewTicker(cleanupInterval),
		stop: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *nonceCache) key(issuer, nonce string) string {
	return issuer + "|" + nonce
}

// checkAndMark reports whether (issuer, nonce) was already seen within
// the TTL window, recording it if not.
func (c *nonceCache) checkAndMark(issuer, nonce string) bool {
	key := c.key(issuer, nonce)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if seenAt, ok := c.seen[key]; ok && now.Sub(seenAt) <= c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

func (c *nonceCache) cleanupLoop() {
	for {
		select {
		case <-c.tick.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *nonceCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, seenAt := range c.seen {
		if now.Sub(seenAt) > c.ttl {
			delete(c.seen, k)
		}
	}
}

func (c *nonceCache) close() {
	close(c.stop)
	c.tick.Stop()
}
