// Package syncer implements the synchronization engine that mirrors the
// remote customer directory into the local cache.
//
// The engine runs at most one pass at a time. Full sync pages through the
// whole directory; incremental sync covers only records updated since the
// last successful checkpoint, and falls back to a full pass when no
// checkpoint exists. Pages stream into the cache as they arrive so partial
// progress survives a mid-pass failure, but the checkpoint only advances
// after a pass completes.
package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tillpoint/patron/internal/fault"
	"github.com/tillpoint/patron/internal/remote"
	"github.com/tillpoint/patron/internal/store"
)

// State is the engine's current activity.
type State int

const (
	// StateIdle means no pass is running.
	StateIdle State = iota
	// StateFullSync means a full directory pass is running.
	StateFullSync
	// StateIncrementalSync means an updated-since pass is running.
	StateIncrementalSync
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFullSync:
		return "full_sync"
	case StateIncrementalSync:
		return "incremental_sync"
	default:
		return "unknown"
	}
}

// Progress reports how far the current pass has gotten.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Result summarizes a completed pass.
type Result struct {
	VenueID  string        `json:"venue_id"`
	Full     bool          `json:"full"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// Status is a read-only snapshot of the engine for the CLI and dashboard.
type Status struct {
	State     State      `json:"state"`
	IsSyncing bool       `json:"is_syncing"`
	Progress  *Progress  `json:"progress,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

// Config holds engine configuration.
type Config struct {
	// PageSize is how many records to request per fetch (default: 100).
	PageSize int

	// OnProgress, if set, is called after each page with cumulative counts.
	OnProgress func(venueID string, p Progress)

	// OnComplete, if set, is called after a pass finishes successfully.
	OnComplete func(r Result)

	// Logger for engine activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize: 100,
		Logger:   log.New(os.Stderr, "[syncer] ", log.LstdFlags),
	}
}

// Engine orchestrates sync passes against the remote directory.
type Engine struct {
	store  *store.Store
	client remote.Client
	config *Config

	mu       sync.Mutex
	state    State
	progress *Progress
}

// New creates a sync engine. The store must be open with schema initialized.
// A nil client is allowed; passes then fail with fault.ErrNotReady until
// SetClient is called.
func New(st *store.Store, client remote.Client, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}
	return &Engine{
		store:  st,
		client: client,
		config: config,
		state:  StateIdle,
	}
}

// SetClient swaps the remote client. Rejected while a pass is running.
func (e *Engine) SetClient(client remote.Client) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fault.ErrSyncInFlight
	}
	e.client = client
	return nil
}

// Status returns a snapshot of the engine's state for a venue.
func (e *Engine) Status(venueID string) Status {
	e.mu.Lock()
	st := Status{
		State:     e.state,
		IsSyncing: e.state != StateIdle,
	}
	if e.progress != nil {
		p := *e.progress
		st.Progress = &p
	}
	e.mu.Unlock()

	if last, err := e.store.LastSync(venueID); err == nil {
		st.LastSync = last
	}
	return st
}

// FullSync runs a complete directory pass for a venue.
//
// Returns fault.ErrSyncInFlight if another pass is running and
// fault.ErrNotReady if no remote client is configured. Any page failure
// aborts the pass; already-applied pages stay in the cache and the
// checkpoint is untouched.
func (e *Engine) FullSync(ctx context.Context, venueID string) error {
	if err := e.begin(StateFullSync); err != nil {
		e.config.Logger.Printf("Full sync rejected for %s: %v", venueID, err)
		return err
	}
	defer e.end()

	return e.runPass(ctx, venueID, nil, true)
}

// IncrementalSync fetches records updated since the venue's checkpoint.
//
// When no checkpoint exists the pass self-heals into a full sync. If any
// page fails the checkpoint is not advanced, so the next attempt re-covers
// the same window.
func (e *Engine) IncrementalSync(ctx context.Context, venueID string) error {
	if err := e.begin(StateIncrementalSync); err != nil {
		e.config.Logger.Printf("Incremental sync rejected for %s: %v", venueID, err)
		return err
	}
	defer e.end()

	since, err := e.store.LastSyncContext(ctx, venueID)
	if err != nil {
		return fmt.Errorf("failed to load sync checkpoint: %w", err)
	}

	if since == nil {
		e.config.Logger.Printf("No checkpoint for %s, falling back to full sync", venueID)
		e.setState(StateFullSync)
		return e.runPass(ctx, venueID, nil, true)
	}

	return e.runPass(ctx, venueID, since, false)
}

// runPass pages through the remote directory, upserting each page before
// requesting the next. The caller must already hold the flight.
func (e *Engine) runPass(ctx context.Context, venueID string, since *time.Time, full bool) error {
	if e.client == nil {
		return fault.ErrNotReady
	}
	if venueID == "" {
		return fault.ErrNotReady
	}

	kind := "incremental"
	if full {
		kind = "full"
	}
	e.config.Logger.Printf("Starting %s sync for venue %s", kind, venueID)

	// The checkpoint candidate is taken before the first fetch, so records
	// updated while the pass runs are re-covered by the next incremental.
	passStart := time.Now().UTC()

	var (
		page       = 1
		totalPages = 1
		applied    = 0
		total      = 0
	)

	for page <= totalPages {
		if err := ctx.Err(); err != nil {
			e.config.Logger.Printf("Sync cancelled for %s after %d records", venueID, applied)
			return fmt.Errorf("sync cancelled: %w", err)
		}

		result, err := e.client.FetchCustomers(ctx, venueID, page, e.config.PageSize, since)
		if err != nil {
			e.config.Logger.Printf("Sync aborted for %s on page %d: %v", venueID, page, err)
			return fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		totalPages = result.TotalPages
		total = result.TotalRecords

		n, err := e.store.UpsertBatchContext(ctx, result.Records, venueID)
		if err != nil {
			e.config.Logger.Printf("Sync aborted for %s writing page %d: %v", venueID, page, err)
			return fmt.Errorf("failed to apply page %d: %w", page, err)
		}
		applied += n

		e.report(venueID, Progress{Current: applied, Total: total})
		page++
	}

	if err := e.store.SetLastSyncContext(ctx, venueID, passStart); err != nil {
		return fmt.Errorf("failed to advance sync checkpoint: %w", err)
	}

	elapsed := time.Since(passStart)
	e.config.Logger.Printf("%s sync complete for %s: %d records in %v",
		kind, venueID, applied, elapsed.Round(time.Millisecond))

	if e.config.OnComplete != nil {
		e.config.OnComplete(Result{
			VenueID:  venueID,
			Full:     full,
			Records:  applied,
			Duration: elapsed,
		})
	}
	return nil
}

// begin transitions the engine into a syncing state. This is the
// single-flight guard: entry is rejected while any pass is running.
func (e *Engine) begin(next State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return fault.ErrSyncInFlight
	}
	e.state = next
	e.progress = nil
	return nil
}

// end returns the engine to idle whether the pass succeeded or failed.
func (e *Engine) end() {
	e.mu.Lock()
	e.state = StateIdle
	e.progress = nil
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) report(venueID string, p Progress) {
	e.mu.Lock()
	cp := p
	e.progress = &cp
	e.mu.Unlock()

	if e.config.OnProgress != nil {
		e.config.OnProgress(venueID, p)
	}
}
