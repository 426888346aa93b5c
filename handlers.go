package searchaccel

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/search-accel/search-accel/origin"
	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
	"github.com/search-accel/search-accel/policy"
	"github.com/search-accel/search-accel/prefetch"
	"github.com/search-accel/search-accel/store"
)

const writeBackTimeout = 2 * time.Second

// Routes returns the HTTP surface of the accelerator.
func (a *Accelerator) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.requestLogger)
	r.Get("/search", a.handleSearch)
	r.Get("/cache-check", a.handleCacheCheck)
	r.Get("/prefetch", a.handlePrefetch)
	r.Delete("/cache", a.handleCacheDelete)
	r.Get("/healthz", a.handleHealthz)
	return r
}

// handleSearch serves a search or tab result fragment: cache read first,
// then a deduplicated origin fetch on miss with an async write-back. Origin
// errors on this path are the only cache-layer errors surfaced to the user.
func (a *Accelerator) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("query")
	collection := params.Get("collection")
	profile := params.Get("profile")

	a.tracker.Record(query)

	var key, cacheType, tabID, class string
	if a.tabs.IsTabRequest(params) {
		tabID = a.tabs.Normalize(a.tabs.ExtractTabID(r.URL))
		key = a.keyer.DeriveTabKey(query, collection, tabID)
		cacheType = "tab"
		class = policy.ClassifyContent(tabID)
		if class == policy.ClassSearch {
			class = policy.ClassTab
		}
	} else {
		key = a.keyer.DeriveKey(cachekey.KindSearch, query, collection, profile)
		cacheType = "search"
		class = policy.ClassSearch
	}

	wantHTML := params.Get("form") == "partial"

	entry, ok, err := a.store.Get(r.Context(), key)
	if err != nil {
		// degraded to a miss, never fatal
		a.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	if ok {
		a.writeCacheHeaders(w, "HIT", cacheType, tabID)
		a.serveEntry(w, entry, wantHTML)
		return
	}

	res, err := a.fetchShared(key, origin.Params{
		Query:      cachekey.Normalize(query),
		Collection: collection,
		Profile:    profile,
		Tab:        tabID,
		SessionID:  params.Get("sessionId"),
		Partial:    wantHTML,
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.OriginError()
		}
		a.log.Error().Err(err).Str("key", key).Msg("Origin fetch failed")
		http.Error(w, "search backend unavailable", http.StatusBadGateway)
		return
	}

	ttl := a.ttl.DefaultTTLFor(query, class)
	freshEntry := store.NewEntry(res.Body, store.DetectFormat(res.ContentType, res.Body), ttl)

	// write back in a goroutine so the response is not slowed down; the
	// write uses its own context because the request's may be gone by then
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeBackTimeout)
		defer cancel()
		if err := a.store.Set(ctx, key, freshEntry, ttl); err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}()

	a.writeCacheHeaders(w, "MISS", cacheType, tabID)
	a.serveEntry(w, freshEntry, wantHTML)
}

// fetchShared collapses concurrent cold-cache fetches for one key into a
// single origin round trip. The fetch runs on a detached context so the
// shared result does not die with whichever request happened to start it.
func (a *Accelerator) fetchShared(key string, p origin.Params) (*origin.Result, error) {
	v, err, _ := a.inflight.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), origin.DefaultTimeout)
		defer cancel()
		return a.origin.Fetch(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*origin.Result), nil
}

// handleCacheCheck is the probe endpoint: existence and TTL only, never the
// payload. Timeouts and store errors answer "not cached".
func (a *Accelerator) handleCacheCheck(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	started := time.Now()

	exists, remaining, key := a.Probe(r.Context(),
		params.Get("query"), params.Get("collection"), params.Get("profile"))

	w.Header().Set("X-Cache-Check-Time", strconv.FormatInt(time.Since(started).Milliseconds(), 10))
	if !exists {
		w.Header().Set("X-Cache-Status", "MISS")
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"exists": false})
		return
	}
	w.Header().Set("X-Cache-Status", "HIT")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exists":   true,
		"cacheKey": key,
		"ttl":      int(remaining / time.Second),
	})
}

// handlePrefetch acknowledges immediately; caching happens after the
// response is sent, on the scheduler's workers.
func (a *Accelerator) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := params.Get("query")
	if query == "" {
		http.Error(w, "query required", http.StatusBadRequest)
		return
	}

	job := prefetch.Job{
		Query:      query,
		Collection: params.Get("collection"),
		Profile:    params.Get("profile"),
		SessionID:  params.Get("sessionId"),
	}
	if ttlParam := params.Get("ttl"); ttlParam != "" {
		if seconds, err := strconv.Atoi(ttlParam); err == nil && seconds > 0 {
			job.TTL = time.Duration(seconds) * time.Second
		}
	}
	a.prefetcher.Schedule(job)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"cacheKey": a.prefetcher.Key(job),
	})
}

// handleCacheDelete removes all keys matching a glob pattern, e.g. `tab:*`.
func (a *Accelerator) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		http.Error(w, "pattern required", http.StatusBadRequest)
		return
	}
	count, err := a.store.DeletePattern(r.Context(), pattern)
	if err != nil {
		a.log.Error().Err(err).Str("pattern", pattern).Msg("Pattern delete failed")
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	a.log.Info().Str("pattern", pattern).Int("deleted", count).Msg("Cache entries deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": count})
}

func (a *Accelerator) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	storeState := "ok"
	if err := a.store.Ping(ctx); err != nil {
		storeState = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "store": storeState})
}

func (a *Accelerator) writeCacheHeaders(w http.ResponseWriter, status, cacheType, tabID string) {
	w.Header().Set("X-Cache-Status", status)
	w.Header().Set("X-Cache-Type", cacheType)
	if tabID != "" {
		w.Header().Set("X-Cache-Tab-ID", tabID)
	}
}

// serveEntry writes a cached or fresh entry. When the client asked for a
// partial render but the stored payload is JSON, the entry is coerced to its
// embedded HTML; uncoercible payloads go out raw and the renderer copes.
func (a *Accelerator) serveEntry(w http.ResponseWriter, entry store.Entry, wantHTML bool) {
	body := entry.Payload
	contentType := contentTypeFor(entry.Format)
	if wantHTML && entry.Format == store.FormatJSON {
		body = entry.CoerceHTML()
		contentType = contentTypeFor(store.FormatHTML)
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(body); err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

func contentTypeFor(f store.Format) string {
	switch f {
	case store.FormatHTML:
		return "text/html; charset=utf-8"
	case store.FormatJSON:
		return "application/json"
	case store.FormatText:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
