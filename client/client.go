// Package client is the UI-facing side of the acceleration layer: it races
// pre-rendered content, a cache probe and the standard fetch for each search
// submission, debounces prefetch triggers on keystrokes, and discards stale
// responses so the newest submission always wins the render.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// DefaultProbeTimeout aborts a slow probe so it never delays the standard
// fallback path.
const DefaultProbeTimeout = time.Second

// ProbeResult is the cache-existence answer.
type ProbeResult struct {
	Exists   bool   `json:"exists"`
	CacheKey string `json:"cacheKey"`
	TTL      int    `json:"ttl"`
}

// Query identifies one search submission.
type Query struct {
	Query      string
	Collection string
	Profile    string
	Tab        string
	SessionID  string
}

// API talks to the accelerator's HTTP surface.
type API struct {
	base       *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewAPI creates a client for the accelerator at base.
func NewAPI(base *url.URL, logger zerolog.Logger) *API {
	return &API{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger,
	}
}

// Probe checks cache existence for a query. A timeout or error is reported
// as a miss, never as an error - the probe only informs path selection.
func (a *API) Probe(ctx context.Context, q Query) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	u := a.endpoint("/cache-check", q, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ProbeResult{}
	}
	res, err := a.httpClient.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Msg("Cache probe failed")
		return ProbeResult{}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return ProbeResult{}
	}
	var pr ProbeResult
	if err := json.NewDecoder(res.Body).Decode(&pr); err != nil {
		return ProbeResult{}
	}
	return pr
}

// Search runs a standard search fetch. This is the guaranteed-correct
// baseline: its server-side handler still checks the cache before hitting
// the origin.
func (a *API) Search(ctx context.Context, q Query) ([]byte, error) {
	extra := url.Values{"form": {"partial"}}
	if q.Tab != "" {
		extra.Set("tab", q.Tab)
	}
	u := a.endpoint("/search", q, extra)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search fetch: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("search returned status %d", res.StatusCode)
	}
	return body, nil
}

// SchedulePrefetch asks the accelerator to warm the cache. Fire and forget:
// errors are logged, never returned - the triggering keystroke handler must
// not care.
func (a *API) SchedulePrefetch(q Query) {
	go func() {
		// independent context so the request outlives a page navigation
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		u := a.endpoint("/prefetch", q, nil)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return
		}
		res, err := a.httpClient.Do(req)
		if err != nil {
			a.log.Debug().Err(err).Str("query", q.Query).Msg("Prefetch request failed")
			return
		}
		res.Body.Close()
	}()
}

func (a *API) endpoint(path string, q Query, extra url.Values) string {
	u := *a.base
	u.Path = path
	values := url.Values{}
	values.Set("query", q.Query)
	if q.Collection != "" {
		values.Set("collection", q.Collection)
	}
	if q.Profile != "" {
		values.Set("profile", q.Profile)
	}
	if q.SessionID != "" {
		values.Set("sessionId", q.SessionID)
	}
	for name, vals := range extra {
		for _, v := range vals {
			values.Set(name, v)
		}
	}
	u.RawQuery = values.Encode()
	return u.String()
}
