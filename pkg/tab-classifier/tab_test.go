package tabclassifier

import (
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

func newClassifier() *Classifier {
	return New(DefaultRules(), zerolog.Nop())
}

func TestIsTabRequestRequiresPartialMarker(t *testing.T) {
	c := newClassifier()
	params := url.Values{"tab": {"Programs"}}
	if c.IsTabRequest(params) {
		t.Fatal("Request without partial marker classified as tab request")
	}
	params.Set("form", "partial")
	if !c.IsTabRequest(params) {
		t.Fatal("Partial request with tab parameter not classified as tab request")
	}
}

func TestIsTabRequestNonDefaultProfile(t *testing.T) {
	c := newClassifier()
	params := url.Values{"form": {"partial"}, "profile": {"_default"}}
	if c.IsTabRequest(params) {
		t.Fatal("Default profile classified as tab request")
	}
	params.Set("profile", "news-profile")
	if !c.IsTabRequest(params) {
		t.Fatal("Non-default profile not classified as tab request")
	}
}

func TestExtractTabIDOrder(t *testing.T) {
	c := newClassifier()
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"facet wins over tab param", "/s/search?form=partial&f.Tabs%7Cseattleu=Programs&tab=News", "Programs"},
		{"explicit tab param", "/s/search?form=partial&tab=News", "News"},
		{"non-default profile", "/s/search?form=partial&profile=staff-directory", "staff-directory"},
		{"literal in url", "/s/search/Faculty_Staff?form=partial", "Faculty_Staff"},
		{"default results", "/s/search?form=partial&query=x", "Results"},
		{"not a tab request", "/s/search?query=x", ""},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.url)
		if err != nil {
			t.Fatal(err)
		}
		if got := c.ExtractTabID(u); got != tc.want {
			t.Fatalf("%s: ExtractTabID = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeSynonymsAndSuffixes(t *testing.T) {
	c := newClassifier()
	cases := map[string]string{
		"Faculty":       "Faculty_Staff",
		"Staff":         "Faculty_Staff",
		"FacultyStaff":  "Faculty_Staff",
		"faculty-staff": "Faculty_Staff",
		"Programs":      "Programs",
		"Programs2":     "Programs",
		"Academics":     "Programs",
		"results3":      "Results",
		"Unknown_Tab":   "Unknown_Tab",
		"":              "",
	}
	for raw, want := range cases {
		if got := c.Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	c := newClassifier()
	for _, raw := range []string{"Faculty", "Programs2", "Unknown_Tab", "News", "123", ""} {
		once := c.Normalize(raw)
		if twice := c.Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}
