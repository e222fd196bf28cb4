// Package scheduler drives sync passes and outbox replay on venue
// activation and on a fixed interval thereafter.
//
// Activation kicks off a non-blocking bootstrap pass (full when the venue
// has no checkpoint, incremental otherwise) followed by an outbox replay,
// then arms a recurring timer that repeats incremental sync plus replay.
// Re-activating, for instance on a venue change, disarms the previous
// timer before arming a new one; there is never more than one timer.
package scheduler

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tillpoint/patron/internal/checkin"
	"github.com/tillpoint/patron/internal/fault"
	"github.com/tillpoint/patron/internal/syncer"
)

// Config holds scheduler configuration.
type Config struct {
	// Interval between periodic sync ticks (default: 15 minutes).
	Interval time.Duration

	// Logger for scheduler activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 15 * time.Minute,
		Logger:   log.New(os.Stderr, "[scheduler] ", log.LstdFlags),
	}
}

// Scheduler owns the background sync/replay loop for the active venue.
type Scheduler struct {
	engine   *syncer.Engine
	checkins *checkin.Service
	config   *Config

	mu      sync.Mutex
	venueID string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler around an engine and check-in service.
func New(engine *syncer.Engine, checkins *checkin.Service, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		engine:   engine,
		checkins: checkins,
		config:   config,
	}
}

// Activate starts the background loop for a venue.
//
// The bootstrap pass runs on its own goroutine and never blocks the
// caller; its failures are logged at the goroutine boundary. Any loop
// armed by a previous Activate is stopped first.
func (s *Scheduler) Activate(venueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.config.Logger.Printf("Re-activating: replacing timer for venue %s with %s",
			s.venueID, venueID)
		s.cancel()
		s.wg.Wait()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.venueID = venueID
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx, venueID)

	s.config.Logger.Printf("Activated venue %s (interval %v)", venueID, s.config.Interval)
}

// Stop disarms the timer and waits for any in-flight pass to wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.venueID = ""
	s.config.Logger.Println("Scheduler stopped")
}

// Venue returns the currently active venue, or "" when inactive.
func (s *Scheduler) Venue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.venueID
}

// run executes the bootstrap pass and then ticks until cancelled.
func (s *Scheduler) run(ctx context.Context, venueID string) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.config.Logger.Printf("Sync loop panic for %s: %v", venueID, r)
		}
	}()

	// Bootstrap. IncrementalSync self-heals into a full pass when the
	// venue has no checkpoint yet.
	s.tick(ctx, venueID)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, venueID)
		}
	}
}

// tick runs one incremental sync followed by an outbox replay. Failures
// are contained here; the next attempt is simply the next tick.
func (s *Scheduler) tick(ctx context.Context, venueID string) {
	if err := s.engine.IncrementalSync(ctx, venueID); err != nil {
		switch {
		case errors.Is(err, fault.ErrSyncInFlight):
			// Another entry point (force sync) is already running a pass.
		case errors.Is(err, context.Canceled):
		default:
			s.config.Logger.Printf("Scheduled sync failed for %s: %v", venueID, err)
		}
	}

	if ctx.Err() != nil {
		return
	}

	if _, err := s.checkins.Replay(ctx, venueID); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.config.Logger.Printf("Scheduled replay failed for %s: %v", venueID, err)
		}
	}
}
