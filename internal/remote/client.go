// Package remote defines the contract with the authoritative customer
// directory and provides its HTTP implementation.
//
// The sync engine and check-in path depend only on the Client interface;
// tests substitute an in-memory fake.
package remote

import (
	"context"
	"time"

	"github.com/tillpoint/patron/internal/schema"
)

// Page is one page of a paginated customer fetch. TotalRecords and
// TotalPages describe the whole result set and keep their meaning for the
// duration of one sync pass.
type Page struct {
	Records      []*schema.CustomerRecord `json:"records"`
	TotalRecords int                      `json:"total_records"`
	TotalPages   int                      `json:"total_pages"`
}

// CustomerFields are the writable attributes of a remote customer.
type CustomerFields struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	LoyaltyMember bool   `json:"loyalty_member"`
}

// CheckInSubmission is the payload for a check-in, live or replayed.
type CheckInSubmission struct {
	Name           string               `json:"name"`
	Phone          string               `json:"phone,omitempty"`
	Method         schema.CheckInMethod `json:"method"`
	CustomerRef    *int64               `json:"customer_ref,omitempty"`
	VenueID        string               `json:"venue_id"`
	OccurredAt     time.Time            `json:"occurred_at"`
	IdempotencyKey string               `json:"-"`
}

// CheckInResponse is the remote's acknowledgement of a check-in.
type CheckInResponse struct {
	ID int64 `json:"id"`
}

// Client is paginated read/write access to the authoritative directory.
//
// Pagination is 1-indexed. All methods may block on the network; callers
// pass a context and treat any error as transient, to be retried on the
// next scheduled tick.
type Client interface {
	// FetchCustomers returns one page of the venue's directory. A nil
	// updatedSince fetches everything; otherwise only records updated at
	// or after the given instant are returned.
	FetchCustomers(ctx context.Context, venueID string, page, perPage int, updatedSince *time.Time) (*Page, error)

	// CreateCustomer creates a customer and returns the stored record.
	CreateCustomer(ctx context.Context, venueID string, fields CustomerFields) (*schema.CustomerRecord, error)

	// UpdateCustomer replaces a customer's fields and returns the stored record.
	UpdateCustomer(ctx context.Context, venueID string, remoteID int64, fields CustomerFields) (*schema.CustomerRecord, error)

	// SubmitCheckIn records a check-in. The submission's idempotency key is
	// forwarded so a cooperating remote can suppress replay duplicates.
	SubmitCheckIn(ctx context.Context, sub CheckInSubmission) (*CheckInResponse, error)
}
