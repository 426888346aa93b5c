package store

import (
	"context"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(""),
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	payloads := map[string][]byte{
		"html":  []byte("<div class=\"results\">Nursing</div>"),
		"json":  []byte(`{"results":[{"title":"Nursing"}]}`),
		"empty": []byte(""),
	}
	for name, s := range testStores(t) {
		for kind, payload := range payloads {
			key := "search:roundtrip " + kind + ":c:p"
			entry := NewEntry(payload, FormatUnknown, time.Minute)
			if err := s.Set(ctx, key, entry, time.Minute); err != nil {
				t.Fatalf("%s/%s: set: %v", name, kind, err)
			}
			got, ok, err := s.Get(ctx, key)
			if err != nil || !ok {
				t.Fatalf("%s/%s: get: ok=%v err=%v", name, kind, ok, err)
			}
			if string(got.Payload) != string(payload) {
				t.Fatalf("%s/%s: payload is %q, want %q", name, kind, got.Payload, payload)
			}
		}
		s.Close()
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Set(ctx, "search:ephemeral:c:p", NewEntry([]byte("x"), FormatText, time.Second), time.Second); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "search:ephemeral:c:p"); ok {
		t.Fatal("Entry readable after expiry")
	}
	if ok, _ := s.Exists(ctx, "search:ephemeral:c:p"); ok {
		t.Fatal("Entry exists after expiry")
	}
}

func TestTTLRemaining(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.Set(ctx, "search:q:c:p", NewEntry([]byte("x"), FormatText, time.Minute), time.Minute)
	d, ok, err := s.TTL(ctx, "search:q:c:p")
	if err != nil || !ok {
		t.Fatalf("TTL: ok=%v err=%v", ok, err)
	}
	if d <= 0 || d > time.Minute {
		t.Fatalf("TTL remaining is %v", d)
	}
	if _, ok, _ := s.TTL(ctx, "search:absent:c:p"); ok {
		t.Fatal("TTL reported for absent key")
	}
}

func TestDeletePatternScopesToPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	entry := NewEntry([]byte("x"), FormatText, time.Minute)
	keys := []string{
		"tab:nursing:c:Programs",
		"tab:nursing:c:News",
		"search:nursing:c:p",
		"search:admissions:c:p",
	}
	for _, k := range keys {
		s.Set(ctx, k, entry, time.Minute)
	}

	n, err := s.DeletePattern(ctx, "tab:*")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Deleted %d keys, want 2", n)
	}
	for _, k := range []string{"search:nursing:c:p", "search:admissions:c:p"} {
		if ok, _ := s.Exists(ctx, k); !ok {
			t.Fatalf("Pattern delete removed unrelated key %s", k)
		}
	}
	for _, k := range []string{"tab:nursing:c:Programs", "tab:nursing:c:News"} {
		if ok, _ := s.Exists(ctx, k); ok {
			t.Fatalf("Pattern delete left %s", k)
		}
	}
}

func TestOverwriteResetsEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.Set(ctx, "search:q:c:p", NewEntry([]byte("old"), FormatText, time.Minute), time.Minute)
	s.Set(ctx, "search:q:c:p", NewEntry([]byte("new"), FormatText, time.Hour), time.Hour)
	got, ok, _ := s.Get(ctx, "search:q:c:p")
	if !ok || string(got.Payload) != "new" {
		t.Fatalf("Payload after overwrite is %q", got.Payload)
	}
	if d, _, _ := s.TTL(ctx, "search:q:c:p"); d <= time.Minute {
		t.Fatalf("Overwrite did not reset TTL: %v remaining", d)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		contentType string
		payload     string
		want        Format
	}{
		{"text/html; charset=utf-8", "irrelevant", FormatHTML},
		{"application/json", "irrelevant", FormatJSON},
		{"text/plain", "irrelevant", FormatText},
		{"", "<ul><li>result</li></ul>", FormatHTML},
		{"", `{"results":[]}`, FormatJSON},
		{"", "plain words", FormatText},
		{"", "", FormatUnknown},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.contentType, []byte(tc.payload)); got != tc.want {
			t.Fatalf("DetectFormat(%q, %q) = %q, want %q", tc.contentType, tc.payload, got, tc.want)
		}
	}
}

func TestCoerceHTMLUnwrapsEnvelope(t *testing.T) {
	e := Entry{Payload: []byte(`{"html":"<p>hi</p>"}`), Format: FormatJSON}
	if got := string(e.CoerceHTML()); got != "<p>hi</p>" {
		t.Fatalf("Coerced payload is %q", got)
	}
	raw := Entry{Payload: []byte(`{"unrelated":1}`), Format: FormatJSON}
	if got := string(raw.CoerceHTML()); got != `{"unrelated":1}` {
		t.Fatalf("Uncoercible payload mangled: %q", got)
	}
}

type countingObserver struct {
	hits, misses, sets, errors int
}

func (c *countingObserver) CacheHit(string)   { c.hits++ }
func (c *countingObserver) CacheMiss(string)  { c.misses++ }
func (c *countingObserver) CacheSet(string)   { c.sets++ }
func (c *countingObserver) CacheError(string) { c.errors++ }

func TestInstrumentedCounts(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	s := Instrument(NewMemoryStore(), obs)

	s.Get(ctx, "search:missing:c:p")
	s.Set(ctx, "search:q:c:p", NewEntry([]byte("x"), FormatText, time.Minute), time.Minute)
	s.Get(ctx, "search:q:c:p")

	if obs.misses != 1 || obs.sets != 1 || obs.hits != 1 {
		t.Fatalf("Observer saw hits=%d misses=%d sets=%d", obs.hits, obs.misses, obs.sets)
	}
}

type panickyObserver struct{}

func (panickyObserver) CacheHit(string)   { panic("observer bug") }
func (panickyObserver) CacheMiss(string)  { panic("observer bug") }
func (panickyObserver) CacheSet(string)   { panic("observer bug") }
func (panickyObserver) CacheError(string) { panic("observer bug") }

func TestObserverFailureDoesNotPropagate(t *testing.T) {
	ctx := context.Background()
	s := Instrument(NewMemoryStore(), panickyObserver{})
	if err := s.Set(ctx, "search:q:c:p", NewEntry([]byte("x"), FormatText, time.Minute), time.Minute); err != nil {
		t.Fatalf("Set failed because of observer: %v", err)
	}
	if _, ok, err := s.Get(ctx, "search:q:c:p"); err != nil || !ok {
		t.Fatalf("Get failed because of observer: ok=%v err=%v", ok, err)
	}
}
