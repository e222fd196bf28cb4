package schema

import (
	"fmt"
	"time"
)

// CheckInMethod is how a customer identified themselves at the counter.
type CheckInMethod string

const (
	MethodPhone  CheckInMethod = "phone"
	MethodGuest  CheckInMethod = "guest"
	MethodIDScan CheckInMethod = "id_scan"
	MethodApp    CheckInMethod = "app"
	MethodWalkIn CheckInMethod = "walk_in"
)

// Valid reports whether m is a known check-in method.
func (m CheckInMethod) Valid() bool {
	switch m {
	case MethodPhone, MethodGuest, MethodIDScan, MethodApp, MethodWalkIn:
		return true
	}
	return false
}

// OutboxEntry is a check-in awaiting confirmed delivery to the remote
// directory. Entries are replayed oldest-first and flipped to Synced once
// the remote accepts them; they are never replayed after that.
type OutboxEntry struct {
	ID      int64  `json:"id"`
	VenueID string `json:"venue_id"`

	Name   string        `json:"name"`
	Phone  string        `json:"phone,omitempty"`
	Method CheckInMethod `json:"method"`

	// CustomerRef is the remote ID of a matched customer, if any.
	CustomerRef *int64 `json:"customer_ref,omitempty"`

	// IdempotencyKey is generated client-side at enqueue time and sent with
	// every submission attempt, so a remote that honors it can suppress the
	// duplicate created when a replay succeeds but the local mark fails.
	IdempotencyKey string `json:"idempotency_key"`

	CreatedAt time.Time `json:"created_at"`
	Synced    bool      `json:"synced"`
}

// Validate checks that the entry can be persisted.
func (e *OutboxEntry) Validate() error {
	if e.VenueID == "" {
		return fmt.Errorf("venue_id is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !e.Method.Valid() {
		return fmt.Errorf("unknown check-in method %q", e.Method)
	}
	if e.IdempotencyKey == "" {
		return fmt.Errorf("idempotency_key is required")
	}
	return nil
}

// CheckInResult is what the caller of the check-in path gets back.
type CheckInResult struct {
	// Confirmed is true when the remote accepted the check-in live.
	// When false the check-in was accepted locally and queued for replay.
	Confirmed bool `json:"confirmed"`

	// RemoteID is the remote check-in identifier when Confirmed.
	RemoteID int64 `json:"remote_id,omitempty"`

	// OutboxID is the local queue identifier when deferred.
	OutboxID int64 `json:"outbox_id,omitempty"`
}
