package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tillpoint/patron/internal/fault"
	"github.com/tillpoint/patron/internal/remote"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/store"
)

// fakeClient serves a fixed directory in pages and records every fetch.
type fakeClient struct {
	mu       sync.Mutex
	records  []*schema.CustomerRecord
	fetches  []int           // page numbers, in request order
	failPage int             // fail when this page is requested (0 = never)
	block    chan struct{}   // when set, fetches wait here
	started  chan struct{}   // closed on first fetch
}

func newFakeClient(n int) *fakeClient {
	c := &fakeClient{}
	for i := 1; i <= n; i++ {
		c.records = append(c.records, &schema.CustomerRecord{
			RemoteID:  int64(i),
			FirstName: fmt.Sprintf("First%d", i),
			LastName:  fmt.Sprintf("Last%d", i),
		})
	}
	return c
}

func (c *fakeClient) FetchCustomers(ctx context.Context, venueID string, page, perPage int, updatedSince *time.Time) (*remote.Page, error) {
	c.mu.Lock()
	c.fetches = append(c.fetches, page)
	started := c.started
	c.started = nil
	block := c.block
	fail := c.failPage != 0 && page == c.failPage
	c.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if fail {
		return nil, fmt.Errorf("%w: simulated outage", fault.ErrRemoteUnavailable)
	}

	total := len(c.records)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &remote.Page{
		Records:      c.records[start:end],
		TotalRecords: total,
		TotalPages:   totalPages,
	}, nil
}

func (c *fakeClient) CreateCustomer(ctx context.Context, venueID string, fields remote.CustomerFields) (*schema.CustomerRecord, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeClient) UpdateCustomer(ctx context.Context, venueID string, remoteID int64, fields remote.CustomerFields) (*schema.CustomerRecord, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeClient) SubmitCheckIn(ctx context.Context, sub remote.CheckInSubmission) (*remote.CheckInResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

func (c *fakeClient) fetchPages() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.fetches...)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return st
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	return cfg
}

func TestFullSync_ThreePages(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(250)

	var progress []Progress
	cfg := quietConfig()
	cfg.OnProgress = func(venueID string, p Progress) {
		progress = append(progress, p)
	}

	engine := New(st, client, cfg)
	if err := engine.FullSync(t.Context(), "venue-1"); err != nil {
		t.Fatalf("FullSync() failed: %v", err)
	}

	// 250 records at page size 100 is exactly three fetches.
	if pages := client.fetchPages(); len(pages) != 3 {
		t.Errorf("fetches = %v, want exactly 3 pages", pages)
	}

	want := []Progress{{100, 250}, {200, 250}, {250, 250}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}

	count, err := st.CountByVenue("venue-1")
	if err != nil {
		t.Fatalf("CountByVenue() failed: %v", err)
	}
	if count != 250 {
		t.Errorf("CountByVenue() = %d, want 250", count)
	}

	last, err := st.LastSync("venue-1")
	if err != nil {
		t.Fatalf("LastSync() failed: %v", err)
	}
	if last == nil {
		t.Error("LastSync() = nil after successful pass")
	}
}

func TestFullSync_PageOrdering(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(250)

	engine := New(st, client, quietConfig())
	if err := engine.FullSync(t.Context(), "venue-1"); err != nil {
		t.Fatalf("FullSync() failed: %v", err)
	}

	pages := client.fetchPages()
	for i, page := range pages {
		if page != i+1 {
			t.Errorf("fetch %d requested page %d, want %d", i, page, i+1)
		}
	}
}

func TestFullSync_PageFailureKeepsPartialProgress(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(250)
	client.failPage = 3

	engine := New(st, client, quietConfig())
	err := engine.FullSync(t.Context(), "venue-1")
	if err == nil {
		t.Fatal("FullSync() succeeded despite page failure")
	}
	if !errors.Is(err, fault.ErrRemoteUnavailable) {
		t.Errorf("error = %v, want remote unavailable", err)
	}

	// Pages 1 and 2 streamed in before the failure and stay applied.
	count, _ := st.CountByVenue("venue-1")
	if count != 200 {
		t.Errorf("CountByVenue() = %d, want 200 from the two good pages", count)
	}

	// The checkpoint must not advance on a failed pass.
	last, _ := st.LastSync("venue-1")
	if last != nil {
		t.Errorf("LastSync() = %v after failed pass, want nil", last)
	}

	// The engine is idle again and a retry can run.
	if engine.Status("venue-1").IsSyncing {
		t.Error("engine still syncing after failed pass")
	}
}

func TestIncrementalSync_MonotonicCheckpoint(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(250)

	checkpoint := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if err := st.SetLastSync("venue-1", checkpoint); err != nil {
		t.Fatalf("SetLastSync() failed: %v", err)
	}

	client.failPage = 2
	engine := New(st, client, quietConfig())
	if err := engine.IncrementalSync(t.Context(), "venue-1"); err == nil {
		t.Fatal("IncrementalSync() succeeded despite page failure")
	}

	last, err := st.LastSync("venue-1")
	if err != nil {
		t.Fatalf("LastSync() failed: %v", err)
	}
	if last == nil || !last.Equal(checkpoint) {
		t.Errorf("LastSync() = %v, want unchanged checkpoint %v", last, checkpoint)
	}
}

func TestIncrementalSync_PassesCheckpointToRemote(t *testing.T) {
	st := testStore(t)

	checkpoint := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if err := st.SetLastSync("venue-1", checkpoint); err != nil {
		t.Fatalf("SetLastSync() failed: %v", err)
	}

	var gotSince *time.Time
	client := &capturingClient{fake: newFakeClient(5), since: &gotSince}

	engine := New(st, client, quietConfig())
	if err := engine.IncrementalSync(t.Context(), "venue-1"); err != nil {
		t.Fatalf("IncrementalSync() failed: %v", err)
	}

	if gotSince == nil || !gotSince.Equal(checkpoint) {
		t.Errorf("updatedSince = %v, want %v", gotSince, checkpoint)
	}
}

func TestIncrementalSync_BootstrapsToFull(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(150)

	var gotSince *time.Time
	wrapped := &capturingClient{fake: client, since: &gotSince}

	engine := New(st, wrapped, quietConfig())
	if err := engine.IncrementalSync(t.Context(), "venue-1"); err != nil {
		t.Fatalf("IncrementalSync() with no checkpoint failed: %v", err)
	}

	// No checkpoint means a full pass: updatedSince stays nil and the
	// whole directory lands in the cache.
	if gotSince != nil {
		t.Errorf("updatedSince = %v, want nil for bootstrap full pass", gotSince)
	}
	count, _ := st.CountByVenue("venue-1")
	if count != 150 {
		t.Errorf("CountByVenue() = %d, want 150", count)
	}
}

func TestSingleFlight(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(100)
	client.block = make(chan struct{})
	client.started = make(chan struct{})
	started := client.started

	engine := New(st, client, quietConfig())

	done := make(chan error, 1)
	go func() {
		done <- engine.FullSync(context.Background(), "venue-1")
	}()

	<-started // first pass is now inside a fetch

	if !engine.Status("venue-1").IsSyncing {
		t.Error("Status().IsSyncing = false during pass")
	}

	// A second request while the first is in flight is rejected without
	// touching engine state.
	if err := engine.FullSync(context.Background(), "venue-1"); !errors.Is(err, fault.ErrSyncInFlight) {
		t.Errorf("concurrent FullSync() = %v, want ErrSyncInFlight", err)
	}
	if err := engine.IncrementalSync(context.Background(), "venue-1"); !errors.Is(err, fault.ErrSyncInFlight) {
		t.Errorf("concurrent IncrementalSync() = %v, want ErrSyncInFlight", err)
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first FullSync() failed: %v", err)
	}

	if engine.Status("venue-1").IsSyncing {
		t.Error("Status().IsSyncing = true after pass finished")
	}

	// Only the winning pass fetched.
	if pages := client.fetchPages(); pages[0] != 1 {
		t.Errorf("unexpected fetch order: %v", pages)
	}
}

func TestFullSync_Cancellation(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(250)

	ctx, cancel := context.WithCancel(context.Background())

	cfg := quietConfig()
	cfg.OnProgress = func(venueID string, p Progress) {
		if p.Current >= 100 {
			cancel() // stop after the first page lands
		}
	}

	engine := New(st, client, cfg)
	err := engine.FullSync(ctx, "venue-1")
	if err == nil {
		t.Fatal("FullSync() ignored cancellation")
	}

	// The applied page stays valid, the checkpoint does not move.
	count, _ := st.CountByVenue("venue-1")
	if count != 100 {
		t.Errorf("CountByVenue() = %d, want 100 from the completed page", count)
	}
	last, _ := st.LastSync("venue-1")
	if last != nil {
		t.Errorf("LastSync() = %v after cancelled pass, want nil", last)
	}
}

func TestFullSync_NotReady(t *testing.T) {
	st := testStore(t)

	engine := New(st, nil, quietConfig())
	if err := engine.FullSync(t.Context(), "venue-1"); !errors.Is(err, fault.ErrNotReady) {
		t.Errorf("FullSync() without client = %v, want ErrNotReady", err)
	}

	engine = New(st, newFakeClient(1), quietConfig())
	if err := engine.FullSync(t.Context(), ""); !errors.Is(err, fault.ErrNotReady) {
		t.Errorf("FullSync() without venue = %v, want ErrNotReady", err)
	}
}

func TestFullSync_EmptyDirectory(t *testing.T) {
	st := testStore(t)
	client := newFakeClient(0)

	engine := New(st, client, quietConfig())
	if err := engine.FullSync(t.Context(), "venue-1"); err != nil {
		t.Fatalf("FullSync() on empty directory failed: %v", err)
	}

	last, _ := st.LastSync("venue-1")
	if last == nil {
		t.Error("LastSync() = nil, empty directory is still a successful pass")
	}
}

// capturingClient records the updatedSince of the first fetch.
type capturingClient struct {
	fake  *fakeClient
	since **time.Time
	once  sync.Once
}

func (c *capturingClient) FetchCustomers(ctx context.Context, venueID string, page, perPage int, updatedSince *time.Time) (*remote.Page, error) {
	c.once.Do(func() { *c.since = updatedSince })
	return c.fake.FetchCustomers(ctx, venueID, page, perPage, updatedSince)
}

func (c *capturingClient) CreateCustomer(ctx context.Context, venueID string, fields remote.CustomerFields) (*schema.CustomerRecord, error) {
	return c.fake.CreateCustomer(ctx, venueID, fields)
}

func (c *capturingClient) UpdateCustomer(ctx context.Context, venueID string, remoteID int64, fields remote.CustomerFields) (*schema.CustomerRecord, error) {
	return c.fake.UpdateCustomer(ctx, venueID, remoteID, fields)
}

func (c *capturingClient) SubmitCheckIn(ctx context.Context, sub remote.CheckInSubmission) (*remote.CheckInResponse, error) {
	return c.fake.SubmitCheckIn(ctx, sub)
}
