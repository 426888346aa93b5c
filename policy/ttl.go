// Package policy decides how long cache entries live. Two independent axes
// are exposed: a popularity axis for a specific query's result set, and a
// content-classification axis for whole result fragments when no explicit
// TTL is supplied. Callers pick one axis; the two are never conflated.
package policy

import (
	"strings"
	"time"
)

// Content classes, longest-lived first.
const (
	ClassFacultyStaff  = "faculty_staff"
	ClassPrograms      = "programs"
	ClassTab           = "tab"
	ClassSearch        = "search"
	ClassTimeSensitive = "time_sensitive"
)

// TTLConfig holds the tier table. All fields are overridable; zero values
// fall back to the defaults below.
type TTLConfig struct {
	// Popularity tiers.
	PopularThreshold     int     `yaml:"popularThreshold"`
	HighVolumeThreshold  int     `yaml:"highVolumeThreshold"`
	PopularMultiplier    float64 `yaml:"popularMultiplier"`
	HighVolumeMultiplier float64 `yaml:"highVolumeMultiplier"`

	// Content-class TTLs.
	FacultyStaffTTL  time.Duration `yaml:"facultyStaffTtl"`
	ProgramsTTL      time.Duration `yaml:"programsTtl"`
	TabTTL           time.Duration `yaml:"tabTtl"`
	SearchTTL        time.Duration `yaml:"searchTtl"`
	TimeSensitiveTTL time.Duration `yaml:"timeSensitiveTtl"`
}

// DefaultTTLConfig returns the stock tier table: staff and faculty content is
// the most stable (hours), news and anything "fresh" the least (minutes).
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		PopularThreshold:     5,
		HighVolumeThreshold:  20,
		PopularMultiplier:    1.3,
		HighVolumeMultiplier: 1.5,
		FacultyStaffTTL:      4 * time.Hour,
		ProgramsTTL:          time.Hour,
		TabTTL:               30 * time.Minute,
		SearchTTL:            10 * time.Minute,
		TimeSensitiveTTL:     5 * time.Minute,
	}
}

// timeSensitiveKeywords force the shortest tier when found in a query.
var timeSensitiveKeywords = []string{"today", "now", "latest", "news", "event"}

// contentKeywords classify content by substring match, checked in order so
// classification is deterministic. Ambiguous content falls through to the
// generic default.
var contentKeywords = []struct {
	class    string
	keywords []string
}{
	{ClassTimeSensitive, []string{"news", "event", "calendar"}},
	{ClassFacultyStaff, []string{"faculty", "staff", "directory"}},
	{ClassPrograms, []string{"program", "academic", "degree", "major"}},
}

// TTLPolicy recommends TTLs. Safe for concurrent use; it only reads its
// config and delegates counting to the tracker.
type TTLPolicy struct {
	cfg     TTLConfig
	tracker *PopularityTracker
}

// NewTTLPolicy creates a policy over the given tracker. Zero config fields
// take their defaults.
func NewTTLPolicy(cfg TTLConfig, tracker *PopularityTracker) *TTLPolicy {
	def := DefaultTTLConfig()
	if cfg.PopularThreshold <= 0 {
		cfg.PopularThreshold = def.PopularThreshold
	}
	if cfg.HighVolumeThreshold <= 0 {
		cfg.HighVolumeThreshold = def.HighVolumeThreshold
	}
	if cfg.PopularMultiplier <= 0 {
		cfg.PopularMultiplier = def.PopularMultiplier
	}
	if cfg.HighVolumeMultiplier <= 0 {
		cfg.HighVolumeMultiplier = def.HighVolumeMultiplier
	}
	if cfg.FacultyStaffTTL <= 0 {
		cfg.FacultyStaffTTL = def.FacultyStaffTTL
	}
	if cfg.ProgramsTTL <= 0 {
		cfg.ProgramsTTL = def.ProgramsTTL
	}
	if cfg.TabTTL <= 0 {
		cfg.TabTTL = def.TabTTL
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = def.SearchTTL
	}
	if cfg.TimeSensitiveTTL <= 0 {
		cfg.TimeSensitiveTTL = def.TimeSensitiveTTL
	}
	return &TTLPolicy{cfg: cfg, tracker: tracker}
}

// RecommendedTTL escalates the default TTL for a query by its traffic volume:
// below the popular threshold the default is returned unchanged, then the
// popular multiplier applies, then the high-volume multiplier. Non-decreasing
// in the query's count.
func (t *TTLPolicy) RecommendedTTL(query string, def time.Duration) time.Duration {
	count := 0
	if t.tracker != nil {
		count = t.tracker.Count(query)
	}
	switch {
	case count >= t.cfg.HighVolumeThreshold:
		return time.Duration(float64(def) * t.cfg.HighVolumeMultiplier)
	case count >= t.cfg.PopularThreshold:
		return time.Duration(float64(def) * t.cfg.PopularMultiplier)
	default:
		return def
	}
}

// ContentTTL returns the TTL for a content class. Time-sensitive keywords in
// the query override the class: "admissions deadline today" is short-lived no
// matter where it renders. Unknown classes get the generic search TTL.
func (t *TTLPolicy) ContentTTL(class, query string) time.Duration {
	q := strings.ToLower(query)
	for _, kw := range timeSensitiveKeywords {
		if strings.Contains(q, kw) {
			return t.cfg.TimeSensitiveTTL
		}
	}
	switch class {
	case ClassFacultyStaff:
		return t.cfg.FacultyStaffTTL
	case ClassPrograms:
		return t.cfg.ProgramsTTL
	case ClassTab:
		return t.cfg.TabTTL
	case ClassTimeSensitive:
		return t.cfg.TimeSensitiveTTL
	default:
		return t.cfg.SearchTTL
	}
}

// ClassifyContent maps free-form content hints (a tab id, a page title) onto
// a content class by substring match. Ambiguous input classifies as the
// generic search class.
func ClassifyContent(hint string) string {
	h := strings.ToLower(hint)
	for _, entry := range contentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(h, kw) {
				return entry.class
			}
		}
	}
	return ClassSearch
}

// DefaultTTLFor is a convenience combining both axes the way the search
// write path uses them: content class picks the base TTL, popularity
// escalates it.
func (t *TTLPolicy) DefaultTTLFor(query, class string) time.Duration {
	return t.RecommendedTTL(query, t.ContentTTL(class, query))
}
