// Package bridge connects Slack to the deal ledger: it receives message
// events over Socket Mode or the Events API, turns them into deals and
// commands, and posts replies and scheduled leaderboards.
package bridge

import "sync"

// EventKey identifies one inbound message delivery.
type EventKey struct {
	User    string
	TS      string
	Channel string
}

// Dedup remembers the most recent event keys in a fixed-size ring so that
// redelivered events are processed once. When the ring is full the oldest
// key is forgotten.
type Dedup struct {
	mu   sync.Mutex
	ring []EventKey
	next int
	seen map[EventKey]struct{}
}

// NewDedup creates a deduplicator holding up to capacity keys.
func NewDedup(capacity int) *Dedup {
	if capacity <= 0 {
		capacity = 1
	}
	return &Dedup{
		ring: make([]EventKey, 0, capacity),
		seen: make(map[EventKey]struct{}, capacity),
	}
}

// Seen returns true if key has already been processed. If not, marks it as seen.
func (d *Dedup) Seen(key EventKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	if len(d.ring) < cap(d.ring) {
		d.ring = append(d.ring, key)
	} else {
		delete(d.seen, d.ring[d.next])
		d.ring[d.next] = key
		d.next = (d.next + 1) % len(d.ring)
	}
	d.seen[key] = struct{}{}
	return false
}

// Len returns the number of remembered keys.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Clear forgets every key.
func (d *Dedup) Clear() {
	d.mu.Lock()
	d.ring = d.ring[:0]
	d.next = 0
	clear(d.seen)
	d.mu.Unlock()
}
