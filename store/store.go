// Package store is the cache storage layer: a key/value abstraction with
// TTL support, backed by Redis in production with an in-memory fallback.
// The store is never a hard dependency for correctness - every failure
// degrades to a cache miss or a dropped write, and callers fall back to a
// live origin fetch.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Store is the cache storage contract.
//
// Implementations must be safe for concurrent use. Set must establish value
// and expiry atomically, never as two operations that could race. Any I/O
// error is recoverable by the caller: a failed Get is a miss, a failed Set
// is a dropped write.
type Store interface {
	// Get returns the entry for the key if present and unexpired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores the entry under the key with the given lifetime.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Exists reports whether the key holds an unexpired entry, without
	// transferring the payload.
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of the key. The boolean is false
	// when the key is absent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	// DeletePattern removes all keys matching a glob pattern with a single
	// `*` wildcard (e.g. `tab:*`) and returns the number removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Config selects and configures the storage backend.
type Config struct {
	// Backend is one of "redis", "sqlite", "memory". Empty means redis
	// with memory fallback.
	Backend string `yaml:"backend"`
	// RedisAddr is the host:port of the primary store.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	// SQLiteFile is the db file for the sqlite backend.
	SQLiteFile string `yaml:"sqliteFile"`
}

// Open creates the configured store. When the Redis primary is unreachable
// at startup it degrades to the in-memory fallback with a warning; the
// fallback is process-local and NOT shared across instances, so cache
// warm-ups on one instance are invisible to the others.
func Open(cfg Config, logger zerolog.Logger) Store {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore()
	case "sqlite":
		return NewSQLiteStore(cfg.SQLiteFile)
	}

	rs := NewRedisStore(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
			Msg("Primary store unreachable, using process-local memory fallback")
		return NewMemoryStore()
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to primary store")
	return rs
}

// encodeEntry serializes an entry for at-rest storage.
func encodeEntry(e Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry: %w", err)
	}
	return b, nil
}

// decodeEntry deserializes a stored entry. A payload that does not parse as
// an entry envelope is returned raw with unknown format rather than failing,
// so a format drift between writers never turns into a read error.
func decodeEntry(b []byte) Entry {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || e.CreatedAt.IsZero() {
		return Entry{Payload: b, Format: FormatUnknown}
	}
	return e
}
