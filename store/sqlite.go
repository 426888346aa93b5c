package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is a single-node persistent backend for deployments without
// Redis that still want the cache to survive restarts. Expiry is enforced on
// read; a background sweep is unnecessary because expired rows are replaced
// in place.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex sync.Mutex
}

// NewSQLiteStore opens (or creates) the cache db. An empty filename opens a
// shared in-memory db, which is useful in tests.
func NewSQLiteStore(filename string) *SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		expires INTEGER,
		created_at INTEGER,
		format TEXT,
		ttl_seconds INTEGER,
		payload BLOB
	)`)
	if err != nil {
		panic(err)
	}
	if _, err = db.Exec("CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)"); err != nil {
		panic(err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		panic(err)
	}
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var expires, created, ttlSeconds int64
	var format string
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT expires, created_at, format, ttl_seconds, payload FROM cache WHERE key = ?", key).
		Scan(&expires, &created, &format, &ttlSeconds, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if time.Now().After(time.Unix(expires, 0)) {
		return Entry{}, false, nil
	}
	return Entry{
		Payload:    payload,
		Format:     Format(format),
		CreatedAt:  time.Unix(created, 0),
		TTLSeconds: int(ttlSeconds),
	}, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO cache
		(key, expires, created_at, format, ttl_seconds, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		key, time.Now().Add(ttl).Unix(), entry.CreatedAt.Unix(),
		string(entry.Format), entry.TTLSeconds, entry.Payload)
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var expires int64
	err := s.db.QueryRowContext(ctx, "SELECT expires FROM cache WHERE key = ?", key).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Before(time.Unix(expires, 0)), nil
}

func (s *SQLiteStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var expires int64
	err := s.db.QueryRowContext(ctx, "SELECT expires FROM cache WHERE key = ?", key).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	remaining := time.Until(time.Unix(expires, 0))
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (s *SQLiteStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	like := strings.ReplaceAll(pattern, "*", "%")
	result, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key LIKE ?", like)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
