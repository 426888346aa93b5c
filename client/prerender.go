package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
)

// Prerender holds content fetched in the background before the user's
// navigation completes. A header-search submission calls Prepare while the
// browser is still redirecting; on arrival the orchestrator takes the result
// for a zero-latency render. Content is consumed at most once.
type Prerender struct {
	api *API
	log zerolog.Logger

	mu    sync.Mutex
	query string
	done  chan struct{}
	body  []byte
	ok    bool
}

// NewPrerender creates an empty holder.
func NewPrerender(api *API, logger zerolog.Logger) *Prerender {
	return &Prerender{api: api, log: logger}
}

// Prepare starts a background fetch for the query. A newer Prepare replaces
// the pending one; the superseded fetch still completes and warms the server
// cache, which is wasted but harmless work.
func (p *Prerender) Prepare(q Query) {
	done := make(chan struct{})

	p.mu.Lock()
	p.query = cachekey.Normalize(q.Query)
	p.done = done
	p.body = nil
	p.ok = false
	p.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		body, err := p.api.Search(ctx, q)

		p.mu.Lock()
		if p.done == done {
			if err == nil && len(body) > 0 {
				p.body = body
				p.ok = true
			} else if err != nil {
				p.log.Debug().Err(err).Str("query", q.Query).Msg("Pre-render fetch failed")
			}
		}
		p.mu.Unlock()
		close(done)
	}()
}

// Take returns the prepared content for the query if it is ready (or becomes
// ready before ctx expires). Returns false when nothing was prepared, the
// query does not match, the fetch failed, or the wait timed out.
func (p *Prerender) Take(ctx context.Context, query string) ([]byte, bool) {
	p.mu.Lock()
	done := p.done
	match := p.done != nil && p.query == cachekey.Normalize(query)
	p.mu.Unlock()
	if !match {
		return nil, false
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done || !p.ok {
		return nil, false
	}
	body := p.body
	p.done = nil
	p.body = nil
	p.ok = false
	return body, true
}
