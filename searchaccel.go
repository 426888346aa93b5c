// Package searchaccel is a caching and acceleration layer between a search
// UI and a third-party search backend. It minimizes perceived latency by
// caching rendered result fragments, answering cheap cache-existence probes,
// and warming the cache ahead of submissions. The cache is never required
// for correctness: every failure degrades to a live origin fetch.
package searchaccel

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/search-accel/search-accel/origin"
	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
	tabclassifier "github.com/search-accel/search-accel/pkg/tab-classifier"
	"github.com/search-accel/search-accel/policy"
	"github.com/search-accel/search-accel/prefetch"
	"github.com/search-accel/search-accel/store"
)

const probeTimeout = time.Second

// Recorder aggregates the metrics hooks the accelerator reports to. All
// methods are observational; a nil Recorder disables reporting.
type Recorder interface {
	store.Observer
	ProbeResult(result string)
	Prefetch(outcome string)
	OriginError()
}

// Config configures an Accelerator.
type Config struct {
	// Storage for cache entries.
	Store store.Store
	// Origin fetches result fragments from the search backend.
	Origin origin.Fetcher
	// TTL tier table. Zero fields take defaults.
	TTL policy.TTLConfig
	// TrackerCapacity bounds the popularity map. Zero selects the default.
	TrackerCapacity int
	// TabRules override the tab classification vocabulary.
	TabRules *tabclassifier.RuleSet
	// Metrics recorder. Optional.
	Metrics Recorder
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Accelerator is the server-side core: it owns key derivation, TTL policy,
// tab classification, the cache store and the prefetch scheduler, and serves
// the HTTP surface (search, cache-check, prefetch, cache admin).
type Accelerator struct {
	store      store.Store
	keyer      cachekey.Keyer
	tabs       *tabclassifier.Classifier
	tracker    *policy.PopularityTracker
	ttl        *policy.TTLPolicy
	origin     origin.Fetcher
	prefetcher *prefetch.Scheduler
	metrics    Recorder
	log        zerolog.Logger

	// inflight dedupes concurrent cold-cache origin fetches per key, so two
	// simultaneous misses for one key cost one origin round trip.
	inflight singleflight.Group
}

// CreateAccelerator initializes the accelerator and starts its background
// workers.
func CreateAccelerator(config Config) *Accelerator {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	rules := tabclassifier.DefaultRules()
	if config.TabRules != nil {
		rules = *config.TabRules
	}
	tabs := tabclassifier.New(rules, logger)

	tracker := policy.NewPopularityTracker(config.TrackerCapacity)
	ttl := policy.NewTTLPolicy(config.TTL, tracker)

	st := store.Instrument(config.Store, config.Metrics)

	a := &Accelerator{
		store:   st,
		keyer:   cachekey.NewKeyer(tabs),
		tabs:    tabs,
		tracker: tracker,
		ttl:     ttl,
		origin:  config.Origin,
		metrics: config.Metrics,
		log:     logger,
	}
	a.prefetcher = prefetch.NewScheduler(st, a.keyer, ttl, tracker, config.Origin, recorderOrNil(config.Metrics), logger)
	return a
}

// Close stops background workers and releases the store.
func (a *Accelerator) Close() error {
	a.prefetcher.Close()
	return a.store.Close()
}

// Probe answers "is this query cached?" without transferring the payload.
// It is bounded by a hard wall-clock timeout even if the backing store hangs,
// and a timeout or store error resolves to a miss, never an error - a probe
// failure must not block the caller's fallback path.
func (a *Accelerator) Probe(ctx context.Context, query, collection, profile string) (exists bool, ttlRemaining time.Duration, key string) {
	key = a.keyer.DeriveKey(cachekey.KindSearch, query, collection, profile)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	type probeResult struct {
		exists bool
		ttl    time.Duration
	}
	done := make(chan probeResult, 1)
	go func() {
		ok, err := a.store.Exists(ctx, key)
		if err != nil || !ok {
			done <- probeResult{}
			return
		}
		remaining, _, _ := a.store.TTL(ctx, key)
		done <- probeResult{exists: true, ttl: remaining}
	}()

	select {
	case res := <-done:
		if res.exists {
			a.recordProbe("hit")
		} else {
			a.recordProbe("miss")
		}
		return res.exists, res.ttl, key
	case <-ctx.Done():
		a.recordProbe("timeout")
		a.log.Debug().Str("key", key).Msg("Cache probe timed out")
		return false, 0, key
	}
}

func (a *Accelerator) recordProbe(result string) {
	if a.metrics != nil {
		a.metrics.ProbeResult(result)
	}
}

func recorderOrNil(r Recorder) prefetch.Recorder {
	if r == nil {
		return nil
	}
	return r
}
