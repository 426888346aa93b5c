package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
)

// Path names identify which branch served a result, for offline analysis.
const (
	PathPrerender  = "prerender"
	PathCacheFirst = "cache-first"
	PathStandard   = "standard"
)

// Telemetry records which branch served each submission. Decoupled from the
// render path: a telemetry failure can never prevent rendering.
type Telemetry interface {
	Served(path string, seq uint64)
}

// Rendered is a successfully produced result.
type Rendered struct {
	Body []byte
	Path string
	Seq  uint64
}

// attempt is one branch of the priority-ordered decision tree: first success
// wins, a failure or timeout falls through to the next branch.
type attempt struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) ([]byte, bool)
}

// Orchestrator evaluates the pre-render, cache-first and standard paths for
// each search submission. Submissions are tagged with a monotonic sequence
// number at issue time; a completion only renders if its sequence is still
// the latest, so a slow early submission can never overwrite a newer one.
type Orchestrator struct {
	api       *API
	prerender *Prerender
	telemetry Telemetry
	log       zerolog.Logger

	seq atomic.Uint64

	// marker remembers the query stored just before the current page load;
	// the cache-first branch only runs when it matches the submission.
	markerMu sync.Mutex
	marker   string
}

// NewOrchestrator creates an orchestrator over the given API client.
func NewOrchestrator(api *API, telemetry Telemetry, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:       api,
		prerender: NewPrerender(api, logger),
		telemetry: telemetry,
		log:       logger,
	}
}

// Prerender exposes the pre-render holder, for the header-search submission
// hook that prepares content before navigation completes.
func (o *Orchestrator) Prerender() *Prerender {
	return o.prerender
}

// SetMarker records the query of an imminent navigation. The next Search for
// the same query is allowed to try the cache-first branch.
func (o *Orchestrator) SetMarker(query string) {
	o.markerMu.Lock()
	o.marker = cachekey.Normalize(query)
	o.markerMu.Unlock()
}

// takeMarker consumes the marker if it matches the query.
func (o *Orchestrator) takeMarker(query string) bool {
	o.markerMu.Lock()
	defer o.markerMu.Unlock()
	if o.marker == "" || o.marker != cachekey.Normalize(query) {
		return false
	}
	o.marker = ""
	return true
}

// Search resolves one submission. Branches run sequentially in priority
// order; each is bounded by its own timeout, and exceeding it is a negative
// result, not an error. The standard path is never skipped as the final
// fallback, and only its error is surfaced.
func (o *Orchestrator) Search(ctx context.Context, q Query) (*Rendered, error) {
	seq := o.seq.Add(1)

	attempts := []attempt{
		{
			name:    PathPrerender,
			timeout: 500 * time.Millisecond,
			run: func(ctx context.Context) ([]byte, bool) {
				return o.prerender.Take(ctx, q.Query)
			},
		},
		{
			name:    PathCacheFirst,
			timeout: DefaultProbeTimeout + 200*time.Millisecond,
			run: func(ctx context.Context) ([]byte, bool) {
				if !o.takeMarker(q.Query) {
					return nil, false
				}
				if !o.api.Probe(ctx, q).Exists {
					return nil, false
				}
				// warm cache, the fetch is expected to be fast
				body, err := o.api.Search(ctx, q)
				if err != nil {
					o.log.Debug().Err(err).Msg("Cache-first fetch failed, falling through")
					return nil, false
				}
				return body, true
			},
		},
	}

	for _, att := range attempts {
		attCtx, cancel := context.WithTimeout(ctx, att.timeout)
		body, ok := att.run(attCtx)
		cancel()
		if ok {
			return o.finish(seq, att.name, body)
		}
	}

	body, err := o.api.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return o.finish(seq, PathStandard, body)
}

// IsLatest reports whether a result's sequence number is still current. The
// UI consults this before applying a render, discarding completions that a
// newer submission has superseded.
func (o *Orchestrator) IsLatest(seq uint64) bool {
	return o.seq.Load() == seq
}

func (o *Orchestrator) finish(seq uint64, path string, body []byte) (*Rendered, error) {
	o.recordServed(path, seq)
	return &Rendered{Body: body, Path: path, Seq: seq}, nil
}

// recordServed shields the render path from a misbehaving telemetry sink.
func (o *Orchestrator) recordServed(path string, seq uint64) {
	if o.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Debug().Interface("panic", r).Msg("Telemetry sink panicked")
		}
	}()
	o.telemetry.Served(path, seq)
}
