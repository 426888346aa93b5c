package searchaccel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/search-accel/search-accel/origin"
	"github.com/search-accel/search-accel/store"
)

type fakeOrigin struct {
	calls atomic.Int64
	body  string
	ct    string
	err   error
	delay time.Duration
}

func (f *fakeOrigin) Fetch(ctx context.Context, p origin.Params) (*origin.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	ct := f.ct
	if ct == "" {
		ct = "text/html"
	}
	return &origin.Result{Body: []byte(f.body), ContentType: ct, StatusCode: 200}, nil
}

func newAccelerator(t *testing.T, o origin.Fetcher) (*Accelerator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	logger := zerolog.Nop()
	a := CreateAccelerator(Config{Store: s, Origin: o, Logger: &logger})
	t.Cleanup(func() { a.Close() })
	return a, s
}

func waitForKey(t *testing.T, s *store.MemoryStore, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := s.Exists(context.Background(), key); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Key %s never appeared in the store", key)
}

func TestSearchMissThenHit(t *testing.T) {
	o := &fakeOrigin{body: "<div>results</div>"}
	a, s := newAccelerator(t, o)
	handler := a.Routes()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/search?query=Study+Abroad&collection=c&profile=p", nil)
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Cache-Status") != "MISS" {
		t.Fatalf("First request cache status is %q", rr.Header().Get("X-Cache-Status"))
	}
	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "<div>results</div>" {
		t.Fatalf("Body is %s", body)
	}

	waitForKey(t, s, "search:study abroad:c:p")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/search?query=++study+++abroad+&collection=c&profile=p", nil))
	if rr.Header().Get("X-Cache-Status") != "HIT" {
		t.Fatalf("Second request cache status is %q", rr.Header().Get("X-Cache-Status"))
	}
	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "<div>results</div>" {
		t.Fatalf("Cached body is %s", body)
	}
	if o.calls.Load() != 1 {
		t.Fatalf("Origin fetched %d times", o.calls.Load())
	}
}

func TestTabRequestPartitionsCache(t *testing.T) {
	o := &fakeOrigin{body: "<ul>programs</ul>"}
	a, s := newAccelerator(t, o)
	handler := a.Routes()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET",
		"/search?query=Nursing+Program&collection=seattleu~sp-search&form=partial&tab=Programs", nil)
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Cache-Type"); got != "tab" {
		t.Fatalf("Cache type is %q", got)
	}
	if got := rr.Header().Get("X-Cache-Tab-ID"); got != "Programs" {
		t.Fatalf("Tab id is %q", got)
	}
	waitForKey(t, s, "tab:nursing program:seattleu~sp-search:Programs")
}

func TestSearchOriginFailureSurfaces(t *testing.T) {
	o := &fakeOrigin{err: errors.New("backend down")}
	a, _ := newAccelerator(t, o)

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, httptest.NewRequest("GET", "/search?query=anything", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Status is %d", rr.Code)
	}
}

func TestConcurrentMissesShareOneOriginFetch(t *testing.T) {
	o := &fakeOrigin{body: "shared", delay: 100 * time.Millisecond}
	a, _ := newAccelerator(t, o)
	handler := a.Routes()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/search?query=stampede&collection=c&profile=p", nil))
			if rr.Code != http.StatusOK {
				t.Errorf("Status is %d", rr.Code)
			}
		}()
	}
	wg.Wait()

	if o.calls.Load() != 1 {
		t.Fatalf("Origin fetched %d times for concurrent identical misses", o.calls.Load())
	}
}

func TestCacheCheckMissAndHit(t *testing.T) {
	o := &fakeOrigin{body: "x"}
	a, s := newAccelerator(t, o)
	handler := a.Routes()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/cache-check?query=tuition&collection=c&profile=p", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Probe on cold cache returned %d", rr.Code)
	}
	if rr.Header().Get("X-Cache-Status") != "MISS" {
		t.Fatalf("Probe status header is %q", rr.Header().Get("X-Cache-Status"))
	}
	if rr.Header().Get("X-Cache-Check-Time") == "" {
		t.Fatal("Probe check-time header missing")
	}

	s.Set(context.Background(), "search:tuition:c:p",
		store.NewEntry([]byte("warm"), store.FormatHTML, time.Minute), time.Minute)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/cache-check?query=Tuition&collection=c&profile=p", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Probe on warm cache returned %d", rr.Code)
	}
	var res struct {
		Exists   bool   `json:"exists"`
		CacheKey string `json:"cacheKey"`
		TTL      int    `json:"ttl"`
	}
	if err := json.NewDecoder(rr.Result().Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Exists || res.CacheKey != "search:tuition:c:p" || res.TTL <= 0 {
		t.Fatalf("Probe response is %+v", res)
	}
}

// stalledStore hangs on every read, ignoring context cancellation, to prove
// the probe's wall-clock bound does not depend on a cooperative store.
type stalledStore struct{ *store.MemoryStore }

func (stalledStore) Exists(ctx context.Context, key string) (bool, error) {
	select {}
}

func TestProbeNeverBlocks(t *testing.T) {
	logger := zerolog.Nop()
	a := CreateAccelerator(Config{
		Store:  stalledStore{store.NewMemoryStore()},
		Origin: &fakeOrigin{body: "x"},
		Logger: &logger,
	})
	defer a.Close()

	start := time.Now()
	exists, _, _ := a.Probe(context.Background(), "anything", "c", "p")
	elapsed := time.Since(start)

	if exists {
		t.Fatal("Stalled store reported a hit")
	}
	if elapsed > 1500*time.Millisecond {
		t.Fatalf("Probe took %v against a stalled store", elapsed)
	}
}

func TestPrefetchEndpointAcceptsImmediately(t *testing.T) {
	o := &fakeOrigin{body: "warmed", delay: 50 * time.Millisecond}
	a, s := newAccelerator(t, o)
	handler := a.Routes()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/prefetch?query=Financial+Aid&collection=c&profile=p", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Prefetch returned %d", rr.Code)
	}
	var res struct {
		Status   string `json:"status"`
		CacheKey string `json:"cacheKey"`
	}
	if err := json.NewDecoder(rr.Result().Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != "accepted" || res.CacheKey != "search:financial aid:c:p" {
		t.Fatalf("Prefetch response is %+v", res)
	}
	waitForKey(t, s, "search:financial aid:c:p")
}

func TestPrefetchRequiresQuery(t *testing.T) {
	a, _ := newAccelerator(t, &fakeOrigin{body: "x"})
	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, httptest.NewRequest("GET", "/prefetch", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Prefetch without query returned %d", rr.Code)
	}
}

func TestCacheDeletePattern(t *testing.T) {
	a, s := newAccelerator(t, &fakeOrigin{body: "x"})
	entry := store.NewEntry([]byte("x"), store.FormatText, time.Minute)
	s.Set(context.Background(), "tab:q:c:Programs", entry, time.Minute)
	s.Set(context.Background(), "search:q:c:p", entry, time.Minute)

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, httptest.NewRequest("DELETE", "/cache?pattern=tab:*", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Delete returned %d", rr.Code)
	}
	var res struct {
		Deleted int `json:"deleted"`
	}
	json.NewDecoder(rr.Result().Body).Decode(&res)
	if res.Deleted != 1 {
		t.Fatalf("Deleted %d entries", res.Deleted)
	}
	if ok, _ := s.Exists(context.Background(), "search:q:c:p"); !ok {
		t.Fatal("Search entry removed by tab pattern delete")
	}
}

func TestJSONEnvelopeCoercedForPartialRender(t *testing.T) {
	o := &fakeOrigin{body: `{"html":"<p>fragment</p>"}`, ct: "application/json"}
	a, _ := newAccelerator(t, o)

	rr := httptest.NewRecorder()
	a.Routes().ServeHTTP(rr, httptest.NewRequest("GET", "/search?query=q&form=partial&tab=News", nil))
	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "<p>fragment</p>" {
		t.Fatalf("Coerced body is %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("Content type is %q", ct)
	}
}
