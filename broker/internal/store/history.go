package store

import (
	"context"
	"fmt"
)

// HistoryRow is one history record, as stored.
type HistoryRow struct {
	Fingerprint string
	TS          int64 // unix milliseconds
	Preview     string
	Verdict     string
	FinalScore  float64
}

// History returns up to limit entries, newest first. limit <= 0 or beyond
// the bound uses the bound.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryRow, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, ts, preview, verdict, final_score
		 FROM history ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history query: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.Fingerprint, &h.TS, &h.Preview, &h.Verdict, &h.FinalScore); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return out, nil
}
