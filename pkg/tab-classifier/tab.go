// Package tabclassifier decides whether a search request targets a named
// result tab and normalizes tab identifiers onto a small canonical
// vocabulary.
//
// Detection is a best-effort heuristic over the upstream backend's
// query-string conventions. A false negative falls back to full-search
// caching, which is safe; a false positive would partition cache space more
// finely than needed but never corrupts data. The rules live in a RuleSet so
// they can be versioned alongside the upstream convention instead of being
// scattered through call sites.
package tabclassifier

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Canonical tab identifiers.
const (
	TabResults      = "Results"
	TabPrograms     = "Programs"
	TabFacultyStaff = "Faculty_Staff"
	TabNews         = "News"
)

const (
	paramForm       = "form"
	paramTab        = "tab"
	paramProfile    = "profile"
	partialMarker   = "partial"
	facetTabPrefix  = "f.Tabs|"
	defaultProfiles = "_default"
)

// RuleSet holds the classification vocabulary. Zero value is unusable; use
// DefaultRules.
type RuleSet struct {
	// Synonyms maps lower-cased spellings onto canonical identifiers.
	Synonyms map[string]string
	// KnownTabs are literal names searched for inside the request URL when
	// no explicit parameter identifies the tab.
	KnownTabs []string
}

// DefaultRules returns the rule set matching the upstream convention as of
// the current backend version.
func DefaultRules() RuleSet {
	return RuleSet{
		Synonyms: map[string]string{
			"result":        TabResults,
			"results":       TabResults,
			"all":           TabResults,
			"program":       TabPrograms,
			"programs":      TabPrograms,
			"academics":     TabPrograms,
			"faculty":       TabFacultyStaff,
			"staff":         TabFacultyStaff,
			"facultystaff":  TabFacultyStaff,
			"faculty-staff": TabFacultyStaff,
			"faculty_staff": TabFacultyStaff,
			"news":          TabNews,
		},
		KnownTabs: []string{TabPrograms, TabFacultyStaff, TabNews, TabResults},
	}
}

// Classifier answers tab-scoping questions about incoming requests.
type Classifier struct {
	rules RuleSet
	log   zerolog.Logger
}

// New creates a Classifier with the given rules.
func New(rules RuleSet, logger zerolog.Logger) *Classifier {
	return &Classifier{rules: rules, log: logger}
}

// IsTabRequest reports whether the request targets a specific result tab.
// A request is tab-scoped when it carries the partial-render marker and at
// least one of: an explicit tab parameter, a non-default profile, or a
// facet-style tab filter parameter.
func (c *Classifier) IsTabRequest(params url.Values) bool {
	if params.Get(paramForm) != partialMarker {
		return false
	}
	if params.Get(paramTab) != "" {
		return true
	}
	if p := params.Get(paramProfile); p != "" && p != defaultProfiles {
		return true
	}
	return facetTabParam(params) != ""
}

// ExtractTabID identifies the targeted tab, raw (un-normalized). Extraction
// order, first match wins: facet-style tab filter, explicit tab parameter,
// non-default profile, known literal tab name embedded anywhere in the URL.
// When the partial-render marker is present but nothing identifies a tab,
// the generic Results tab is returned. Empty string means not a tab request.
func (c *Classifier) ExtractTabID(u *url.URL) string {
	params := u.Query()
	if v := facetTabParam(params); v != "" {
		return v
	}
	if v := params.Get(paramTab); v != "" {
		return v
	}
	if p := params.Get(paramProfile); p != "" && p != defaultProfiles {
		return p
	}
	raw := u.String()
	for _, known := range c.rules.KnownTabs {
		if strings.Contains(raw, known) {
			return known
		}
	}
	if params.Get(paramForm) == partialMarker {
		c.log.Debug().Str("url", raw).Msg("Partial render request without identifiable tab")
		return TabResults
	}
	return ""
}

// Normalize maps a raw tab identifier onto the canonical vocabulary: trailing
// numeric suffixes are stripped (duplicate-element numbering artifacts), then
// known synonym spellings collapse onto one identifier. Unknown identifiers
// pass through unchanged. Total and idempotent.
func (c *Classifier) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	id := strings.TrimRight(strings.TrimSpace(raw), "0123456789")
	if id == "" {
		return raw
	}
	if canonical, ok := c.rules.Synonyms[strings.ToLower(id)]; ok {
		return canonical
	}
	return id
}

// facetTabParam returns the value of the first facet-style tab filter
// parameter (`f.Tabs|<collection>=<tab>`), or empty.
func facetTabParam(params url.Values) string {
	for name, values := range params {
		if strings.HasPrefix(name, facetTabPrefix) && len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return ""
}
