package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Lookup returns the cached result JSON for a fingerprint, or ok=false on a
// miss. An entry older than the TTL is a miss and is evicted on this read
// path; there is no background sweep.
func (s *Store) Lookup(ctx context.Context, fingerprint string) (result []byte, ok bool, err error) {
	var raw string
	var storedAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT result, stored_at FROM verdict_cache WHERE fingerprint = ?`,
		fingerprint).Scan(&raw, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: cache lookup: %w", err)
	}

	age := s.now().UnixMilli() - storedAt
	if age > s.ttl.Milliseconds() {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM verdict_cache WHERE fingerprint = ?`, fingerprint); err != nil {
			return nil, false, fmt.Errorf("store: cache evict: %w", err)
		}
		return nil, false, nil
	}
	return []byte(raw), true, nil
}

// StoreResult caches a result and appends the matching history entry in one
// transaction. A fingerprint already in history moves to the front (its
// timestamp is refreshed) instead of duplicating; history is then trimmed
// to the bound, oldest first.
func (s *Store) StoreResult(ctx context.Context, fingerprint string, result []byte, preview, verdict string, finalScore float64) error {
	now := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO verdict_cache (fingerprint, result, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET result = excluded.result, stored_at = excluded.stored_at`,
		fingerprint, string(result), now); err != nil {
		return fmt.Errorf("store: cache upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (fingerprint, ts, preview, verdict, final_score) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   ts = excluded.ts, preview = excluded.preview,
		   verdict = excluded.verdict, final_score = excluded.final_score`,
		fingerprint, now, preview, verdict, finalScore); err != nil {
		return fmt.Errorf("store: history upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE fingerprint NOT IN (
		   SELECT fingerprint FROM history ORDER BY ts DESC, rowid DESC LIMIT ?)`,
		s.limit); err != nil {
		return fmt.Errorf("store: history trim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
