package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tillpoint/patron/internal/schema"
)

// timeLayout is RFC3339 with a fixed-width fraction so stored timestamps
// compare correctly as strings in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EnqueueOutbox persists a pending check-in with synced=false and returns
// its local id. The entry is durable before this returns.
func (s *Store) EnqueueOutbox(entry *schema.OutboxEntry) (int64, error) {
	return s.EnqueueOutboxContext(context.Background(), entry)
}

// EnqueueOutboxContext persists a pending check-in with context support.
func (s *Store) EnqueueOutboxContext(ctx context.Context, entry *schema.OutboxEntry) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("invalid outbox entry: %w", err)
	}

	query := `
	INSERT INTO outbox (venue_id, name, phone, method, customer_ref, idempotency_key, created_at, synced)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`

	res, err := s.conn.ExecContext(ctx, query,
		entry.VenueID,
		entry.Name,
		stringToNull(entry.Phone),
		string(entry.Method),
		int64PtrToNull(entry.CustomerRef),
		entry.IdempotencyKey,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue check-in: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// ListUnsyncedOutbox returns a venue's pending check-ins in the order they
// were created, oldest first. This is the replay order.
func (s *Store) ListUnsyncedOutbox(venueID string) ([]*schema.OutboxEntry, error) {
	return s.ListUnsyncedOutboxContext(context.Background(), venueID)
}

// ListUnsyncedOutboxContext returns pending check-ins with context support.
func (s *Store) ListUnsyncedOutboxContext(ctx context.Context, venueID string) ([]*schema.OutboxEntry, error) {
	query := `
	SELECT id, venue_id, name, phone, method, customer_ref, idempotency_key, created_at, synced
	FROM outbox
	WHERE venue_id = ? AND synced = 0
	ORDER BY created_at ASC, id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending check-ins: %w", err)
	}
	defer rows.Close()

	var entries []*schema.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox: %w", err)
	}

	return entries, nil
}

// MarkOutboxSynced flips an entry to synced. Idempotent; marking an already
// synced or unknown id is a no-op.
func (s *Store) MarkOutboxSynced(id int64) error {
	return s.MarkOutboxSyncedContext(context.Background(), id)
}

// MarkOutboxSyncedContext flips an entry to synced with context support.
func (s *Store) MarkOutboxSyncedContext(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "UPDATE outbox SET synced = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark check-in %d synced: %w", id, err)
	}
	return nil
}

// CountUnsyncedOutbox returns the number of pending check-ins for a venue.
func (s *Store) CountUnsyncedOutbox(venueID string) (int, error) {
	return s.CountUnsyncedOutboxContext(context.Background(), venueID)
}

// CountUnsyncedOutboxContext returns the pending count with context support.
func (s *Store) CountUnsyncedOutboxContext(ctx context.Context, venueID string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM outbox WHERE venue_id = ? AND synced = 0", venueID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending check-ins: %w", err)
	}
	return count, nil
}

// PruneSyncedOutbox deletes delivered entries older than the cutoff and
// returns how many were removed. Pending entries are never pruned.
func (s *Store) PruneSyncedOutbox(ctx context.Context, venueID string, olderThan time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM outbox WHERE venue_id = ? AND synced = 1 AND created_at < ?",
		venueID, olderThan.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned count: %w", err)
	}
	return n, nil
}

func scanOutboxEntry(rows *sql.Rows) (*schema.OutboxEntry, error) {
	var entry schema.OutboxEntry
	var phone sql.NullString
	var customerRef sql.NullInt64
	var method, createdAt string
	var synced int

	err := rows.Scan(
		&entry.ID,
		&entry.VenueID,
		&entry.Name,
		&phone,
		&method,
		&customerRef,
		&entry.IdempotencyKey,
		&createdAt,
		&synced,
	)
	if err != nil {
		return nil, err
	}

	entry.Phone = phone.String
	entry.Method = schema.CheckInMethod(method)
	if customerRef.Valid {
		ref := customerRef.Int64
		entry.CustomerRef = &ref
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		entry.CreatedAt = t
	}
	entry.Synced = synced != 0

	return &entry, nil
}

func int64PtrToNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
