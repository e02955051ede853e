package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingsRow is the single persisted settings record.
type SettingsRow struct {
	APIBase  string
	AutoScan bool
}

// GetSettings returns the persisted settings, seeding the given defaults on
// first read.
func (s *Store) GetSettings(ctx context.Context, defaults SettingsRow) (SettingsRow, error) {
	var row SettingsRow
	var autoScan int
	err := s.db.QueryRowContext(ctx,
		`SELECT api_base, auto_scan FROM settings WHERE id = 1`).Scan(&row.APIBase, &autoScan)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.SaveSettings(ctx, defaults); err != nil {
			return SettingsRow{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return SettingsRow{}, fmt.Errorf("store: settings query: %w", err)
	}
	row.AutoScan = autoScan != 0
	return row, nil
}

// SaveSettings writes the settings record, bumping updated_at so change
// watchers fire.
func (s *Store) SaveSettings(ctx context.Context, row SettingsRow) error {
	autoScan := 0
	if row.AutoScan {
		autoScan = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, api_base, auto_scan, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   api_base = excluded.api_base, auto_scan = excluded.auto_scan,
		   updated_at = excluded.updated_at`,
		row.APIBase, autoScan, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: settings save: %w", err)
	}
	return nil
}

// SettingsVersion is a change token for the settings row, usable with
// watch.Options.Detector to get live-reload notifications.
func (s *Store) SettingsVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM settings`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("store: settings version: %w", err)
	}
	return v.Int64, nil
}
