package policy

import (
	"container/list"
	"sync"
	"time"

	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
)

// DefaultTrackerCapacity bounds the popularity map when no capacity is
// configured. Counters live only for the process lifetime; losing them has no
// correctness impact, only a TTL-tier one.
const DefaultTrackerCapacity = 10000

// counter is one query's traffic record.
type counter struct {
	query        string
	count        int
	lastAccessed time.Time
}

// PopularityTracker counts query traffic to inform TTL escalation. It counts
// every cache event identically (hit, miss, set) - it tracks traffic, not hit
// rate. The map is LRU-capped: once full, recording a new query evicts the
// least recently touched one.
//
// Safe for concurrent use.
type PopularityTracker struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	counters map[string]*list.Element
}

// NewPopularityTracker creates a tracker holding at most capacity distinct
// queries. A non-positive capacity selects DefaultTrackerCapacity.
func NewPopularityTracker(capacity int) *PopularityTracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &PopularityTracker{
		capacity: capacity,
		order:    list.New(),
		counters: make(map[string]*list.Element),
	}
}

// Record increments the traffic counter for the query. The query is
// normalized before lookup so every call path shares one counter.
func (p *PopularityTracker) Record(query string) {
	q := cachekey.Normalize(query)
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.counters[q]; ok {
		c := el.Value.(*counter)
		c.count++
		c.lastAccessed = now
		p.order.MoveToFront(el)
		return
	}
	if p.order.Len() >= p.capacity {
		oldest := p.order.Back()
		if oldest != nil {
			p.order.Remove(oldest)
			delete(p.counters, oldest.Value.(*counter).query)
		}
	}
	p.counters[q] = p.order.PushFront(&counter{query: q, count: 1, lastAccessed: now})
}

// Count returns the recorded traffic for the query, 0 if unseen (or evicted).
func (p *PopularityTracker) Count(query string) int {
	q := cachekey.Normalize(query)

	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.counters[q]; ok {
		return el.Value.(*counter).count
	}
	return 0
}

// Len returns the number of distinct queries currently tracked.
func (p *PopularityTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}
