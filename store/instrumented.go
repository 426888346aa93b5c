package store

import (
	"context"
	"time"
)

// Observer receives cache events. Implementations must be cheap;
// observation runs inline on the data path. Failures (panics included) are
// contained and can never surface as cache errors.
type Observer interface {
	CacheHit(category string)
	CacheMiss(category string)
	CacheSet(category string)
	CacheError(category string)
}

// Instrumented decorates a Store with per-category hit/miss/set counters.
// The category is derived from the key prefix (`search`, `tab`, ...).
type Instrumented struct {
	Store
	observer Observer
}

// Instrument wraps a store with an observer. A nil observer returns the
// store unwrapped.
func Instrument(s Store, observer Observer) Store {
	if observer == nil {
		return s
	}
	return &Instrumented{Store: s, observer: observer}
}

func (i *Instrumented) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok, err := i.Store.Get(ctx, key)
	switch {
	case err != nil:
		i.observe(func(o Observer) { o.CacheError(keyCategory(key)) })
	case ok:
		i.observe(func(o Observer) { o.CacheHit(keyCategory(key)) })
	default:
		i.observe(func(o Observer) { o.CacheMiss(keyCategory(key)) })
	}
	return entry, ok, err
}

func (i *Instrumented) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	err := i.Store.Set(ctx, key, entry, ttl)
	if err != nil {
		i.observe(func(o Observer) { o.CacheError(keyCategory(key)) })
	} else {
		i.observe(func(o Observer) { o.CacheSet(keyCategory(key)) })
	}
	return err
}

// observe shields the data path from a misbehaving observer.
func (i *Instrumented) observe(fn func(Observer)) {
	defer func() { _ = recover() }()
	fn(i.observer)
}

func keyCategory(key string) string {
	for idx := 0; idx < len(key); idx++ {
		if key[idx] == ':' {
			return key[:idx]
		}
	}
	return "other"
}
