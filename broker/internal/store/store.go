// Package store persists the broker's verdict cache, history log, and
// settings in sqlite. It is the only writer of these tables.
package store

import (
	"database/sql"
	"time"
)

// Schema creates the broker tables. settings.updated_at feeds the
// data_version-style change detection used for live settings reload.
const Schema = `
CREATE TABLE IF NOT EXISTS verdict_cache (
    fingerprint TEXT PRIMARY KEY,
    result      TEXT NOT NULL,
    stored_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
    fingerprint TEXT PRIMARY KEY,
    ts          INTEGER NOT NULL,
    preview     TEXT NOT NULL,
    verdict     TEXT NOT NULL,
    final_score REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts DESC);

CREATE TABLE IF NOT EXISTS settings (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    api_base   TEXT NOT NULL,
    auto_scan  INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Defaults for the cache TTL and history bound.
const (
	DefaultTTL          = 24 * time.Hour
	DefaultHistoryLimit = 50
)

// Store wraps the broker database. Safe for concurrent use; sqlite
// serialises the writes.
type Store struct {
	db    *sql.DB
	ttl   time.Duration
	limit int
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the cache TTL.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithHistoryLimit overrides the history bound.
func WithHistoryLimit(n int) Option { return func(s *Store) { s.limit = n } }

// WithClock overrides the time source. Tests use it to age entries past the
// TTL without sleeping.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New wraps an open database (schema already applied, e.g. via
// dbopen.WithSchema(Schema)).
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		ttl:   DefaultTTL,
		limit: DefaultHistoryLimit,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}
