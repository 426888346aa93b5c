// Package origin talks to the third-party search backend. The backend is
// opaque: it takes a (query, collection, profile, tab) tuple and returns a
// rendered HTML or JSON fragment. Nothing here interprets result content.
package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// DefaultTimeout bounds a single origin fetch.
const DefaultTimeout = 5 * time.Second

// Params identify one origin request. SessionID is forwarded for the
// backend's own bookkeeping but never contributes to cache keys.
type Params struct {
	Query      string
	Collection string
	Profile    string
	Tab        string
	SessionID  string
	// Partial requests the fragment form of the results page.
	Partial bool
}

// Result is one origin response.
type Result struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Fetcher is the origin contract consumed by the cache layer. *Client is
// the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, p Params) (*Result, error)
}

// Client fetches result fragments from the backend. A circuit breaker sheds
// load when the backend is failing, so prefetch traffic stops hammering a
// sick origin while the standard path still surfaces the real error.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewClient creates a Client for the given backend endpoint.
func NewClient(endpoint *url.URL, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "origin",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("Origin circuit breaker state change")
		},
	})
	return c
}

// Fetch retrieves the result fragment for the given parameters. Non-2xx
// statuses are errors; the cache layer must never store error pages.
func (c *Client) Fetch(ctx context.Context, p Params) (*Result, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) fetch(ctx context.Context, p Params) (*Result, error) {
	u := c.buildURL(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building origin request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin fetch: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading origin response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("origin returned status %d", res.StatusCode)
	}
	c.log.Trace().Str("url", u).Int("status", res.StatusCode).
		Int("bytes", len(body)).Msg("Origin fetch complete")
	return &Result{
		Body:        body,
		ContentType: res.Header.Get("Content-Type"),
		StatusCode:  res.StatusCode,
	}, nil
}

// buildURL assembles the backend query string from normalized inputs.
func (c *Client) buildURL(p Params) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("query", p.Query)
	if p.Collection != "" {
		q.Set("collection", p.Collection)
	}
	if p.Profile != "" {
		q.Set("profile", p.Profile)
	}
	if p.Partial {
		q.Set("form", "partial")
	}
	if p.Tab != "" {
		q.Set("f.Tabs|"+p.Collection, p.Tab)
	}
	if p.SessionID != "" {
		q.Set("sessionId", p.SessionID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
