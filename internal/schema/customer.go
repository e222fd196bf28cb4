// Package schema provides the data structures shared by the patron cache,
// sync engine, and check-in outbox.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// CustomerRecord is the local mirror of a person in the remote directory.
//
// Identity is the composite key (RemoteID, VenueID): the same person at two
// venues is two records. Records are replaced whole on update (last-write-wins),
// never merged field by field.
type CustomerRecord struct {
	RemoteID int64  `json:"remote_id"`
	VenueID  string `json:"venue_id"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`

	LoyaltyMember bool `json:"loyalty_member"`

	// SyncedAt is when this record was last written locally.
	SyncedAt time.Time `json:"synced_at"`
}

// Validate checks that the record can be persisted.
func (c *CustomerRecord) Validate() error {
	if c.RemoteID <= 0 {
		return fmt.Errorf("remote_id must be positive (got %d)", c.RemoteID)
	}
	if c.VenueID == "" {
		return fmt.Errorf("venue_id is required")
	}
	return nil
}

// PhoneDigits returns the record's phone normalized for indexing.
func (c *CustomerRecord) PhoneDigits() string {
	return NormalizePhone(c.Phone)
}

// NormalizePhone strips everything but digits and keeps the trailing 10,
// so "+1 (509) 555-0182" and "5095550182" index identically. Inputs with
// fewer than 10 digits are returned as their digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}
