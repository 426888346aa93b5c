// Package prefetch warms the cache ahead of search submissions. Jobs are
// fire-and-forget: the triggering code path gets an immediate answer, and
// completion or failure is observable only through metrics and logs.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/search-accel/search-accel/origin"
	cachekey "github.com/search-accel/search-accel/pkg/cache-key"
	"github.com/search-accel/search-accel/policy"
	"github.com/search-accel/search-accel/store"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
	fetchTimeout     = 5 * time.Second
)

// Recorder receives prefetch outcomes. May be nil.
type Recorder interface {
	Prefetch(outcome string)
	OriginError()
}

// Job is one prefetch request.
type Job struct {
	Query      string
	Collection string
	Profile    string
	SessionID  string
	// TTL overrides the policy recommendation when positive.
	TTL time.Duration
}

// Scheduler runs prefetch jobs on a small worker pool. Concurrent jobs for
// the same key are safe to overlap: entries are immutable-by-replacement, so
// the last write simply wins.
type Scheduler struct {
	jobs    chan Job
	store   store.Store
	keyer   cachekey.Keyer
	ttl     *policy.TTLPolicy
	tracker *policy.PopularityTracker
	fetcher origin.Fetcher
	rec     Recorder
	log     zerolog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// NewScheduler creates a scheduler and starts its workers.
func NewScheduler(s store.Store, keyer cachekey.Keyer, ttl *policy.TTLPolicy, tracker *policy.PopularityTracker, fetcher origin.Fetcher, rec Recorder, logger zerolog.Logger) *Scheduler {
	sched := &Scheduler{
		jobs:    make(chan Job, defaultQueueSize),
		store:   s,
		keyer:   keyer,
		ttl:     ttl,
		tracker: tracker,
		fetcher: fetcher,
		rec:     rec,
		log:     logger,
	}
	for i := 0; i < defaultWorkers; i++ {
		sched.wg.Add(1)
		go sched.worker()
	}
	return sched
}

// Schedule enqueues a job and returns immediately. Returns false when the
// queue is full, in which case the job is dropped - prefetching is best
// effort and a dropped warm-up costs latency, not correctness.
func (s *Scheduler) Schedule(j Job) bool {
	select {
	case s.jobs <- j:
		return true
	default:
		s.record("dropped")
		s.log.Debug().Str("query", j.Query).Msg("Prefetch queue full, dropping job")
		return false
	}
}

// Key returns the cache key a job would populate, for acknowledgements.
func (s *Scheduler) Key(j Job) string {
	return s.keyer.DeriveKey(cachekey.KindSearch, j.Query, j.Collection, j.Profile)
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (s *Scheduler) Close() {
	s.once.Do(func() { close(s.jobs) })
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		s.run(j)
	}
}

// run executes one job. Failures are swallowed: a prefetch miss is invisible
// to the user by design. The fetch uses a background context so it outlives
// the request (or page navigation) that triggered it.
func (s *Scheduler) run(j Job) {
	jobID := uuid.NewString()
	log := s.log.With().Str("job", jobID).Str("query", j.Query).Logger()

	key := s.Key(j)
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if s.tracker != nil {
		s.tracker.Record(j.Query)
	}

	if exists, err := s.store.Exists(ctx, key); err == nil && exists {
		s.record("skipped")
		log.Trace().Str("key", key).Msg("Already cached, skipping prefetch")
		return
	}

	res, err := s.fetcher.Fetch(ctx, origin.Params{
		Query:      cachekey.Normalize(j.Query),
		Collection: j.Collection,
		Profile:    j.Profile,
		SessionID:  j.SessionID,
		Partial:    true,
	})
	if err != nil {
		s.record("failed")
		if s.rec != nil {
			s.rec.OriginError()
		}
		log.Debug().Err(err).Msg("Prefetch origin fetch failed")
		return
	}

	ttl := j.TTL
	if ttl <= 0 {
		ttl = s.ttl.DefaultTTLFor(j.Query, policy.ClassSearch)
	}
	format := store.DetectFormat(res.ContentType, res.Body)
	if err := s.store.Set(ctx, key, store.NewEntry(res.Body, format, ttl), ttl); err != nil {
		s.record("failed")
		log.Debug().Err(err).Str("key", key).Msg("Prefetch cache write failed")
		return
	}
	s.record("cached")
	log.Debug().Str("key", key).Dur("ttl", ttl).Msg("Prefetched")
}

func (s *Scheduler) record(outcome string) {
	if s.rec != nil {
		s.rec.Prefetch(outcome)
	}
}
