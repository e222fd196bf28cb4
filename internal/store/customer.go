package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tillpoint/patron/internal/schema"
)

// UpsertBatch inserts or replaces a batch of customer records for a venue.
//
// The whole batch is applied in one transaction: readers never observe a
// half-written page, and re-running the same batch is a no-op apart from
// refreshed synced_at stamps. Records failing validation abort the batch.
// Returns the number of records applied.
func (s *Store) UpsertBatch(records []*schema.CustomerRecord, venueID string) (int, error) {
	return s.UpsertBatchContext(context.Background(), records, venueID)
}

// UpsertBatchContext inserts or replaces a batch with context support.
func (s *Store) UpsertBatchContext(ctx context.Context, records []*schema.CustomerRecord, venueID string) (int, error) {
	if venueID == "" {
		return 0, fmt.Errorf("venue_id is required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO customers (
		remote_id, venue_id, first_name, last_name,
		phone, phone_digits, email, loyalty_member, synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_id, venue_id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		phone = excluded.phone,
		phone_digits = excluded.phone_digits,
		email = excluded.email,
		loyalty_member = excluded.loyalty_member,
		synced_at = excluded.synced_at
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	count := 0
	for _, rec := range records {
		rec.VenueID = venueID
		if err := rec.Validate(); err != nil {
			return 0, fmt.Errorf("invalid customer record: %w", err)
		}

		syncedAt := rec.SyncedAt
		if syncedAt.IsZero() {
			syncedAt = now
		}

		_, err := stmt.ExecContext(ctx,
			rec.RemoteID,
			venueID,
			rec.FirstName,
			rec.LastName,
			stringToNull(rec.Phone),
			stringToNull(rec.PhoneDigits()),
			stringToNull(rec.Email),
			boolToInt(rec.LoyaltyMember),
			syncedAt.Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert customer %d: %w", rec.RemoteID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return count, nil
}

// FindByPhone looks up a customer by phone within a venue.
//
// The input is normalized to its trailing 10 digits and matched against the
// stored phone_digits suffix. When several records share a suffix the lowest
// remote_id wins, so repeated lookups are deterministic. Returns nil when
// nothing matches.
func (s *Store) FindByPhone(phone, venueID string) (*schema.CustomerRecord, error) {
	return s.FindByPhoneContext(context.Background(), phone, venueID)
}

// FindByPhoneContext looks up a customer by phone with context support.
func (s *Store) FindByPhoneContext(ctx context.Context, phone, venueID string) (*schema.CustomerRecord, error) {
	digits := schema.NormalizePhone(phone)
	if digits == "" {
		return nil, nil
	}

	query := `
	SELECT remote_id, venue_id, first_name, last_name,
	       phone, email, loyalty_member, synced_at
	FROM customers
	WHERE venue_id = ?
	  AND phone_digits IS NOT NULL
	  AND (phone_digits = ? OR phone_digits LIKE '%' || ?)
	ORDER BY remote_id ASC
	LIMIT 1
	`

	row := s.conn.QueryRowContext(ctx, query, venueID, digits, digits)
	rec, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by phone: %w", err)
	}
	return rec, nil
}

// FindByName looks up a customer by case-insensitive exact first and last
// name within a venue. Returns nil when nothing matches.
func (s *Store) FindByName(first, last, venueID string) (*schema.CustomerRecord, error) {
	return s.FindByNameContext(context.Background(), first, last, venueID)
}

// FindByNameContext looks up a customer by name with context support.
func (s *Store) FindByNameContext(ctx context.Context, first, last, venueID string) (*schema.CustomerRecord, error) {
	query := `
	SELECT remote_id, venue_id, first_name, last_name,
	       phone, email, loyalty_member, synced_at
	FROM customers
	WHERE venue_id = ?
	  AND first_name = ? COLLATE NOCASE
	  AND last_name = ? COLLATE NOCASE
	ORDER BY remote_id ASC
	LIMIT 1
	`

	row := s.conn.QueryRowContext(ctx, query, venueID, first, last)
	rec, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by name: %w", err)
	}
	return rec, nil
}

// CountByVenue returns the number of cached customers for a venue.
func (s *Store) CountByVenue(venueID string) (int, error) {
	return s.CountByVenueContext(context.Background(), venueID)
}

// CountByVenueContext returns the customer count with context support.
func (s *Store) CountByVenueContext(ctx context.Context, venueID string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM customers WHERE venue_id = ?", venueID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// ClearVenue removes every cached customer for a venue, along with its sync
// checkpoint, forcing the next pass to be a full re-import. The outbox is
// left untouched so pending check-ins survive.
func (s *Store) ClearVenue(venueID string) error {
	return s.ClearVenueContext(context.Background(), venueID)
}

// ClearVenueContext removes a venue's cached customers with context support.
func (s *Store) ClearVenueContext(ctx context.Context, venueID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM customers WHERE venue_id = ?", venueID); err != nil {
		return fmt.Errorf("failed to clear customers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_state WHERE venue_id = ?", venueID); err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByVenue returns every cached customer for a venue ordered by remote_id.
// Used by the JSONL exporter; lookups should use FindByPhone/FindByName.
func (s *Store) ListByVenue(ctx context.Context, venueID string) ([]*schema.CustomerRecord, error) {
	query := `
	SELECT remote_id, venue_id, first_name, last_name,
	       phone, email, loyalty_member, synced_at
	FROM customers
	WHERE venue_id = ?
	ORDER BY remote_id ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var records []*schema.CustomerRecord
	for rows.Next() {
		rec, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return records, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (*schema.CustomerRecord, error) {
	var rec schema.CustomerRecord
	var phone, email sql.NullString
	var loyalty int
	var syncedAt string

	err := row.Scan(
		&rec.RemoteID,
		&rec.VenueID,
		&rec.FirstName,
		&rec.LastName,
		&phone,
		&email,
		&loyalty,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Phone = phone.String
	rec.Email = email.String
	rec.LoyaltyMember = loyalty != 0
	if t, err := time.Parse(time.RFC3339, syncedAt); err == nil {
		rec.SyncedAt = t
	}

	return &rec, nil
}

func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
