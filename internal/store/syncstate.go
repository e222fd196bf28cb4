package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LastSync returns the last successful sync checkpoint for a venue, or nil
// if the venue has never completed a pass.
func (s *Store) LastSync(venueID string) (*time.Time, error) {
	return s.LastSyncContext(context.Background(), venueID)
}

// LastSyncContext returns the sync checkpoint with context support.
func (s *Store) LastSyncContext(ctx context.Context, venueID string) (*time.Time, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx,
		"SELECT last_sync FROM sync_state WHERE venue_id = ?", venueID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sync checkpoint: %w", err)
	}
	return &t, nil
}

// SetLastSync records a venue's sync checkpoint. The checkpoint only moves
// forward: a value at or before the stored one leaves the row unchanged.
func (s *Store) SetLastSync(venueID string, at time.Time) error {
	return s.SetLastSyncContext(context.Background(), venueID, at)
}

// SetLastSyncContext records the sync checkpoint with context support.
func (s *Store) SetLastSyncContext(ctx context.Context, venueID string, at time.Time) error {
	query := `
	INSERT INTO sync_state (venue_id, last_sync)
	VALUES (?, ?)
	ON CONFLICT(venue_id) DO UPDATE SET
		last_sync = excluded.last_sync
	WHERE excluded.last_sync > sync_state.last_sync
	`

	_, err := s.conn.ExecContext(ctx, query, venueID, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}
