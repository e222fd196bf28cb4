package store

import (
	"testing"
	"time"

	"github.com/tillpoint/patron/internal/schema"
)

func customer(id int64, first, last, phone string) *schema.CustomerRecord {
	return &schema.CustomerRecord{
		RemoteID:  id,
		FirstName: first,
		LastName:  last,
		Phone:     phone,
	}
}

func TestUpsertBatch_Insert(t *testing.T) {
	s := testStore(t)

	records := []*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", "5095550182"),
		customer(2, "Grace", "Hopper", "2065550199"),
	}

	n, err := s.UpsertBatch(records, "venue-1")
	if err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("UpsertBatch() = %d, want 2", n)
	}

	count, err := s.CountByVenue("venue-1")
	if err != nil {
		t.Fatalf("CountByVenue() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountByVenue() = %d, want 2", count)
	}
}

func TestUpsertBatch_Idempotent(t *testing.T) {
	s := testStore(t)

	rec := customer(1, "Ada", "Lovelace", "5095550182")
	for i := 0; i < 2; i++ {
		if _, err := s.UpsertBatch([]*schema.CustomerRecord{rec}, "venue-1"); err != nil {
			t.Fatalf("UpsertBatch() pass %d failed: %v", i+1, err)
		}
	}

	count, err := s.CountByVenue("venue-1")
	if err != nil {
		t.Fatalf("CountByVenue() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountByVenue() after double upsert = %d, want 1", count)
	}
}

func TestUpsertBatch_LastWriteWins(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", "5095550182"),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	updated := customer(1, "Ada", "King", "5095550182")
	updated.LoyaltyMember = true
	if _, err := s.UpsertBatch([]*schema.CustomerRecord{updated}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() update failed: %v", err)
	}

	got, err := s.FindByPhone("5095550182", "venue-1")
	if err != nil {
		t.Fatalf("FindByPhone() failed: %v", err)
	}
	if got == nil {
		t.Fatal("FindByPhone() returned nil")
	}
	if got.LastName != "King" {
		t.Errorf("LastName = %q, want %q", got.LastName, "King")
	}
	if !got.LoyaltyMember {
		t.Error("LoyaltyMember not updated")
	}
}

func TestUpsertBatch_InvalidRecordAbortsBatch(t *testing.T) {
	s := testStore(t)

	records := []*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", ""),
		customer(0, "No", "Identity", ""), // invalid remote_id
	}

	if _, err := s.UpsertBatch(records, "venue-1"); err == nil {
		t.Fatal("UpsertBatch() accepted invalid record")
	}

	// The batch is atomic: nothing from it may be visible.
	count, err := s.CountByVenue("venue-1")
	if err != nil {
		t.Fatalf("CountByVenue() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountByVenue() after aborted batch = %d, want 0", count)
	}
}

func TestFindByPhone_Normalization(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", "5095550182"),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	inputs := []string{
		"+1 (509) 555-0182",
		"509-555-0182",
		"5095550182",
		"1 509 555 0182",
	}
	for _, input := range inputs {
		got, err := s.FindByPhone(input, "venue-1")
		if err != nil {
			t.Fatalf("FindByPhone(%q) failed: %v", input, err)
		}
		if got == nil {
			t.Errorf("FindByPhone(%q) = nil, want match", input)
			continue
		}
		if got.RemoteID != 1 {
			t.Errorf("FindByPhone(%q) matched remote id %d, want 1", input, got.RemoteID)
		}
	}
}

func TestFindByPhone_SuffixMatch(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", "5095550182"),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	// A 7-digit local number matches on the stored suffix.
	got, err := s.FindByPhone("555-0182", "venue-1")
	if err != nil {
		t.Fatalf("FindByPhone() failed: %v", err)
	}
	if got == nil || got.RemoteID != 1 {
		t.Errorf("FindByPhone(short) = %v, want remote id 1", got)
	}
}

func TestFindByPhone_VenueIsolation(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", "5095550182"),
	}, "venue-b"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	got, err := s.FindByPhone("5095550182", "venue-a")
	if err != nil {
		t.Fatalf("FindByPhone() failed: %v", err)
	}
	if got != nil {
		t.Errorf("FindByPhone() across venues = %v, want nil", got)
	}
}

func TestFindByPhone_AmbiguousIsDeterministic(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(7, "Ada", "Lovelace", "5095550182"),
		customer(3, "Ada", "King", "5095550182"),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := s.FindByPhone("5095550182", "venue-1")
		if err != nil {
			t.Fatalf("FindByPhone() failed: %v", err)
		}
		if got == nil || got.RemoteID != 3 {
			t.Errorf("FindByPhone() pass %d = %v, want lowest remote id 3", i+1, got)
		}
	}
}

func TestFindByName_CaseInsensitive(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", ""),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	got, err := s.FindByName("ADA", "lovelace", "venue-1")
	if err != nil {
		t.Fatalf("FindByName() failed: %v", err)
	}
	if got == nil || got.RemoteID != 1 {
		t.Errorf("FindByName() = %v, want remote id 1", got)
	}

	miss, err := s.FindByName("Ada", "Hopper", "venue-1")
	if err != nil {
		t.Fatalf("FindByName() failed: %v", err)
	}
	if miss != nil {
		t.Errorf("FindByName() wrong last name = %v, want nil", miss)
	}
}

func TestClearVenue(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Ada", "Lovelace", ""),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(1, "Grace", "Hopper", ""),
	}, "venue-2"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}
	if err := s.SetLastSync("venue-1", time.Now()); err != nil {
		t.Fatalf("SetLastSync() failed: %v", err)
	}

	if err := s.ClearVenue("venue-1"); err != nil {
		t.Fatalf("ClearVenue() failed: %v", err)
	}

	count, _ := s.CountByVenue("venue-1")
	if count != 0 {
		t.Errorf("CountByVenue(venue-1) after clear = %d, want 0", count)
	}

	// Checkpoint is gone so the next pass re-imports everything.
	last, err := s.LastSync("venue-1")
	if err != nil {
		t.Fatalf("LastSync() failed: %v", err)
	}
	if last != nil {
		t.Errorf("LastSync() after clear = %v, want nil", last)
	}

	// Other venues are untouched.
	other, _ := s.CountByVenue("venue-2")
	if other != 1 {
		t.Errorf("CountByVenue(venue-2) = %d, want 1", other)
	}
}

func TestListByVenue_Ordered(t *testing.T) {
	s := testStore(t)

	if _, err := s.UpsertBatch([]*schema.CustomerRecord{
		customer(30, "C", "Three", ""),
		customer(10, "A", "One", ""),
		customer(20, "B", "Two", ""),
	}, "venue-1"); err != nil {
		t.Fatalf("UpsertBatch() failed: %v", err)
	}

	records, err := s.ListByVenue(t.Context(), "venue-1")
	if err != nil {
		t.Fatalf("ListByVenue() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ListByVenue() returned %d records, want 3", len(records))
	}
	for i, want := range []int64{10, 20, 30} {
		if records[i].RemoteID != want {
			t.Errorf("records[%d].RemoteID = %d, want %d", i, records[i].RemoteID, want)
		}
	}
}
