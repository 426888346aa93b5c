package client

import (
	"sync"
	"time"
)

const (
	// DefaultPrefetchMinLength is deliberately higher than the threshold
	// for visible suggestions, so near-empty queries are never prefetched.
	DefaultPrefetchMinLength = 4
	// DefaultQuietWindow is how long typing must pause before the pending
	// query actually triggers a network call.
	DefaultQuietWindow = 300 * time.Millisecond
)

// Debouncer turns a stream of keystrokes into occasional prefetch triggers:
// only the last query within a quiet window fires. Triggers are debounced,
// not throttled - a fast typist causes exactly one call, at the end.
// In-flight prefetches for superseded queries are not cancelled; an
// abandoned prefetch still completes and warms the cache.
type Debouncer struct {
	minLength int
	window    time.Duration
	trigger   func(Query)

	mu      sync.Mutex
	timer   *time.Timer
	pending Query
}

// NewDebouncer creates a debouncer calling trigger after each quiet window.
// Non-positive minLength and window select the defaults.
func NewDebouncer(minLength int, window time.Duration, trigger func(Query)) *Debouncer {
	if minLength <= 0 {
		minLength = DefaultPrefetchMinLength
	}
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{minLength: minLength, window: window, trigger: trigger}
}

// KeyUp records a keystroke. Queries shorter than the minimum length cancel
// any pending trigger instead of scheduling one.
func (d *Debouncer) KeyUp(q Query) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(q.Query) < d.minLength {
		return
	}
	d.pending = q
	d.timer = time.AfterFunc(d.window, d.fire)
}

// Stop cancels any pending trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	q := d.pending
	d.timer = nil
	d.mu.Unlock()
	d.trigger(q)
}
