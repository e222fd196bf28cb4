// Package checkin implements the live check-in path and the offline outbox
// replayer.
//
// A check-in is first submitted live to the remote directory. On any
// failure, including having no remote configured, the entry is queued
// durably and the caller is told the check-in was accepted but deferred.
// The replayer later drains the queue oldest-first; a stuck entry is logged
// and skipped so it never blocks the rest.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tillpoint/patron/internal/fault"
	"github.com/tillpoint/patron/internal/remote"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/store"
)

// Request is a check-in from the counter.
type Request struct {
	VenueID     string
	Name        string
	Phone       string
	Method      schema.CheckInMethod
	CustomerRef *int64
}

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Config holds service configuration.
type Config struct {
	// OnDeferred, if set, is called when a live submission falls back to
	// the outbox.
	OnDeferred func(entry *schema.OutboxEntry)

	// OnReplayed, if set, is called after each replay pass that attempted
	// at least one entry.
	OnReplayed func(venueID string, stats ReplayStats)

	// Logger for service activity (default: stderr logger).
	Logger *log.Logger
}

// Service runs check-ins against the remote directory with durable fallback.
type Service struct {
	store  *store.Store
	client remote.Client
	config *Config
}

// New creates a check-in service. A nil client forces every check-in onto
// the outbox until SetClient is called.
func New(st *store.Store, client remote.Client, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[checkin] ", log.LstdFlags)
	}
	return &Service{
		store:  st,
		client: client,
		config: config,
	}
}

// SetClient swaps the remote client used for submissions.
func (s *Service) SetClient(client remote.Client) {
	s.client = client
}

// CheckIn attempts a live submission; on failure the check-in is queued and
// the result reports it as deferred rather than confirmed.
//
// The returned error is non-nil only when the check-in could not be
// persisted at all, which is the one outcome the counter must surface.
func (s *Service) CheckIn(ctx context.Context, req Request) (*schema.CheckInResult, error) {
	if req.VenueID == "" {
		return nil, fault.ErrNotReady
	}

	entry := &schema.OutboxEntry{
		VenueID:        req.VenueID,
		Name:           req.Name,
		Phone:          req.Phone,
		Method:         req.Method,
		CustomerRef:    req.CustomerRef,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid check-in: %w", err)
	}

	resp, err := s.submit(ctx, entry)
	if err == nil {
		s.config.Logger.Printf("Check-in confirmed for %q at %s (remote id %d)",
			entry.Name, entry.VenueID, resp.ID)
		return &schema.CheckInResult{Confirmed: true, RemoteID: resp.ID}, nil
	}

	if !errors.Is(err, fault.ErrNoRemote) {
		s.config.Logger.Printf("Live check-in failed for %q at %s, deferring: %v",
			entry.Name, entry.VenueID, err)
	}

	id, qerr := s.store.EnqueueOutboxContext(ctx, entry)
	if qerr != nil {
		return nil, fmt.Errorf("failed to queue check-in: %w", qerr)
	}

	if s.config.OnDeferred != nil {
		s.config.OnDeferred(entry)
	}
	return &schema.CheckInResult{Confirmed: false, OutboxID: id}, nil
}

// Replay drains a venue's pending check-ins in FIFO order.
//
// Each delivered entry is marked synced before the next is attempted.
// Per-entry failures are logged and skipped; delivery is at-least-once, so
// a mark that fails after a successful submission means the entry will be
// resubmitted next pass, relying on its idempotency key for suppression.
func (s *Service) Replay(ctx context.Context, venueID string) (ReplayStats, error) {
	var stats ReplayStats

	if s.client == nil {
		return stats, fault.ErrNoRemote
	}

	entries, err := s.store.ListUnsyncedOutboxContext(ctx, venueID)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending check-ins: %w", err)
	}
	if len(entries) == 0 {
		return stats, nil
	}

	s.config.Logger.Printf("Replaying %d pending check-ins for %s", len(entries), venueID)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("replay cancelled: %w", err)
		}
		stats.Attempted++

		if _, err := s.submit(ctx, entry); err != nil {
			s.config.Logger.Printf("Replay failed for check-in %d (%q): %v",
				entry.ID, entry.Name, err)
			stats.Failed++
			continue
		}

		if err := s.store.MarkOutboxSyncedContext(ctx, entry.ID); err != nil {
			// Delivered but not marked: entry replays again next pass.
			s.config.Logger.Printf("Delivered check-in %d but failed to mark synced: %v",
				entry.ID, err)
			stats.Failed++
			continue
		}
		stats.Delivered++
	}

	s.config.Logger.Printf("Replay complete for %s: %d delivered, %d failed",
		venueID, stats.Delivered, stats.Failed)

	if s.config.OnReplayed != nil {
		s.config.OnReplayed(venueID, stats)
	}
	return stats, nil
}

// PruneSynced removes delivered entries older than the retention window and
// returns how many were removed.
func (s *Service) PruneSynced(ctx context.Context, venueID string, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return s.store.PruneSyncedOutbox(ctx, venueID, cutoff)
}

func (s *Service) submit(ctx context.Context, entry *schema.OutboxEntry) (*remote.CheckInResponse, error) {
	if s.client == nil {
		return nil, fault.ErrNoRemote
	}
	return s.client.SubmitCheckIn(ctx, remote.CheckInSubmission{
		Name:           entry.Name,
		Phone:          entry.Phone,
		Method:         entry.Method,
		CustomerRef:    entry.CustomerRef,
		VenueID:        entry.VenueID,
		OccurredAt:     entry.CreatedAt,
		IdempotencyKey: entry.IdempotencyKey,
	})
}
