package cachekey

import (
	"strings"
)

const (
	separator = ":"
	tabPrefix = "tab"

	// Sentinel values used when the request does not carry an explicit
	// collection or profile.
	DefaultCollection = "default"
	DefaultProfile    = "default"
)

// Kind selects the cache key namespace.
type Kind string

const (
	KindSearch     Kind = "search"
	KindTab        Kind = "tab"
	KindSuggestion Kind = "suggestion"
)

// strippedPunctuation is the fixed set of characters removed during query
// normalization. Queries differing only by these characters share a key.
const strippedPunctuation = `"'?!`

// TabNormalizer collapses equivalent tab spellings onto one identifier.
type TabNormalizer interface {
	Normalize(raw string) string
}

// Keyer derives cache keys for search, tab and suggestion requests.
// Derivation is deterministic, and normalization is identical on every call
// path (prefetch check, write, read) - cache coherence depends on it.
// Session identifiers are never part of a key, so entries are shared across
// users.
type Keyer struct {
	tabs TabNormalizer
}

// NewKeyer creates a Keyer. The tab normalizer may be nil, in which case tab
// identifiers are embedded as-is.
func NewKeyer(tabs TabNormalizer) Keyer {
	return Keyer{tabs: tabs}
}

// Normalize canonicalizes a query for keying: lower-case, trimmed, internal
// whitespace collapsed to single spaces, and a small fixed punctuation set
// removed. Total function; the empty string normalizes to itself.
func Normalize(query string) string {
	query = strings.ToLower(query)
	if strings.ContainsAny(query, strippedPunctuation) {
		query = strings.Map(func(r rune) rune {
			if strings.ContainsRune(strippedPunctuation, r) {
				return -1
			}
			return r
		}, query)
	}
	return strings.Join(strings.Fields(query), " ")
}

// DeriveKey returns the cache key for a (kind, query, collection, profile)
// tuple: `<kind>:<normalizedQuery>:<collection>:<profile>`. Empty collection
// and profile fall back to the default sentinels.
func (k Keyer) DeriveKey(kind Kind, query, collection, profile string) string {
	if collection == "" {
		collection = DefaultCollection
	}
	if profile == "" {
		profile = DefaultProfile
	}
	return string(kind) + separator + Normalize(query) + separator + collection + separator + profile
}

// DeriveTabKey returns the key for a tab-scoped result fragment:
// `tab:<normalizedQuery>:<collection>:<normalizedTabId>`. The raw tab id is
// passed through the tab normalizer so equivalent spellings collapse to one
// key.
func (k Keyer) DeriveTabKey(query, collection, rawTab string) string {
	if collection == "" {
		collection = DefaultCollection
	}
	tab := rawTab
	if k.tabs != nil {
		tab = k.tabs.Normalize(rawTab)
	}
	return tabPrefix + separator + Normalize(query) + separator + collection + separator + tab
}

// KindPrefix returns the key prefix covering every entry of the given kind,
// suitable for pattern deletes (`search:*`, `tab:*`).
func KindPrefix(kind Kind) string {
	return string(kind) + separator
}
