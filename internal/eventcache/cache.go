// Package eventcache implements the Event Cache (spec.md §4.4): a bounded,
// in-memory FIFO of the most recently persisted events, used to answer
// "since <id>" replay requests without round-tripping to the store.
//
// The ring shape is adapted from the teacher's
// pkg/platform/audit/publishers/security/buffer.go RingBuffer: a
// fixed-size slice addressed by a moving start offset, overwritten in
// place once full, so both Append and eviction are O(1) regardless of
// capacity. An id→absolute-sequence map gives GetAllEventsSince O(1)
// lookup of where priorID sits in the ring, which the teacher's ring
// buffer — built only for batch draining, never point lookup — does not
// need.
package eventcache

import (
	"sync"

	"github.com/google/uuid"

	"accessfabric/internal/domain"
	"accessfabric/internal/metrics"
)

// Cache is a bounded FIFO of domain.Event, keyed by event id.
type Cache struct {
	mu    sync.RWMutex
	ring  []domain.Event // fixed-size, length == capacity once filled
	start int            // ring index of the oldest entry
	count int            // number of valid entries currently in ring

	baseSeq int64                  // absolute sequence number of the entry at start
	nextSeq int64                  // absolute sequence number the next Append will assign
	index   map[uuid.UUID]int64    // event id -> absolute sequence number

	capacity int
	evicted  int64 // count of ids evicted since start, for diagnostics
	metrics  *metrics.Metrics
}

// New constructs a Cache holding at most capacity events.
func New(capacity int, m *metrics.Metrics) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		ring:     make([]domain.Event, capacity),
		index:    make(map[uuid.UUID]int64, capacity),
		capacity: capacity,
		metrics:  m,
	}
}

// Append adds an event to the cache, evicting the oldest entry if the
// cache is at capacity. Both the append and the eviction it may trigger
// are O(1): the oldest slot is overwritten in place and the ring's start
// offset advances by one, rather than re-indexing every remaining entry.
func (c *Cache) Append(event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count >= c.capacity {
		c.evictOldestLocked()
	}

	pos := (c.start + c.count) % c.capacity
	c.ring[pos] = event
	c.index[event.EventID] = c.nextSeq
	c.nextSeq++
	c.count++
}

// AppendAll appends each event in order, honoring the same eviction policy
// as Append.
func (c *Cache) AppendAll(events []domain.Event) {
	for _, e := range events {
		c.Append(e)
	}
}

func (c *Cache) evictOldestLocked() {
	oldest := c.ring[c.start]
	delete(c.index, oldest.EventID)
	c.start = (c.start + 1) % c.capacity
	c.count--
	c.baseSeq++
	c.evicted++
	if c.metrics != nil {
		c.metrics.CacheEvictions.Inc()
	}
}

// GetAllEventsSince returns the ordered suffix of cached events strictly
// after priorID. The bool return is false if priorID is not present in the
// cache (either never cached, or already evicted) — the caller surfaces
// this as 404 per spec.md §6.
func (c *Cache) GetAllEventsSince(priorID uuid.UUID) ([]domain.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seq, ok := c.index[priorID]
	if !ok {
		return nil, false
	}
	offset := int(seq - c.baseSeq)

	out := make([]domain.Event, 0, c.count-offset-1)
	for i := offset + 1; i < c.count; i++ {
		out = append(out, c.ring[(c.start+i)%c.capacity])
	}
	return out, true
}

// Len reports the number of events currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
