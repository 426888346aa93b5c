package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Format describes the shape of a cached payload, detected at write time.
type Format string

const (
	FormatHTML    Format = "html"
	FormatJSON    Format = "json"
	FormatText    Format = "text"
	FormatUnknown Format = "unknown"
)

// Entry is one cached result fragment. The payload is opaque rendered
// content from the origin. TTLSeconds records the lifetime chosen at write
// time; it is informational after the write and never renegotiated.
type Entry struct {
	Payload    []byte    `json:"payload"`
	Format     Format    `json:"format"`
	CreatedAt  time.Time `json:"createdAt"`
	TTLSeconds int       `json:"ttlSeconds"`
}

// NewEntry stamps a fresh entry for the given payload.
func NewEntry(payload []byte, format Format, ttl time.Duration) Entry {
	return Entry{
		Payload:    payload,
		Format:     format,
		CreatedAt:  time.Now(),
		TTLSeconds: int(ttl / time.Second),
	}
}

// DetectFormat determines the payload format. The origin's Content-Type
// header is authoritative when present; shape sniffing is only a fallback
// for origins that omit it.
func DetectFormat(contentType string, payload []byte) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return FormatHTML
	case strings.Contains(ct, "application/json"):
		return FormatJSON
	case strings.Contains(ct, "text/"):
		return FormatText
	}
	return sniffFormat(payload)
}

// sniffFormat guesses a format from the payload shape. Best effort only.
func sniffFormat(payload []byte) Format {
	trimmed := strings.TrimSpace(string(payload))
	switch {
	case trimmed == "":
		return FormatUnknown
	case strings.HasPrefix(trimmed, "<"):
		return FormatHTML
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}
	return FormatText
}

// htmlEnvelopeFields are the envelope keys checked, in order, when coercing
// a JSON payload that is expected to contain rendered HTML.
var htmlEnvelopeFields = []string{"html", "content", "body", "result"}

// CoerceHTML returns the payload as renderable HTML. A JSON envelope with an
// embedded HTML field is unwrapped; anything that cannot be coerced is
// returned raw so the renderer can cope. Never fails.
func (e Entry) CoerceHTML() []byte {
	if e.Format != FormatJSON {
		return e.Payload
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &envelope); err != nil {
		return e.Payload
	}
	for _, field := range htmlEnvelopeFields {
		raw, ok := envelope[field]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return []byte(s)
		}
	}
	return e.Payload
}
