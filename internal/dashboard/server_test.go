package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tillpoint/patron/internal/checkin"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/syncer"
)

func quietServer(status StatusProvider) *Server {
	return NewServer(&Config{
		Status: status,
		Logger: log.New(io.Discard, "", 0),
	})
}

func TestHandleHealth(t *testing.T) {
	srv := quietServer(nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := quietServer(func(ctx context.Context) (any, error) {
		return map[string]any{
			"venue_id":         "venue-1",
			"customers_cached": 512,
			"is_syncing":       false,
		}, nil
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got["venue_id"] != "venue-1" {
		t.Errorf("venue_id = %v, want venue-1", got["venue_id"])
	}
	if got["customers_cached"] != float64(512) {
		t.Errorf("customers_cached = %v, want 512", got["customers_cached"])
	}
}

func TestHandleStatus_NoProvider(t *testing.T) {
	srv := quietServer(nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandleStatus_ProviderError(t *testing.T) {
	srv := quietServer(func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("cache unavailable")
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestBroadcast_ChannelFullDropsMessage(t *testing.T) {
	srv := quietServer(nil)

	// Without the broadcast loop running, the channel fills at its
	// capacity and further messages must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			srv.Broadcast(Message{Type: MessageTypeSyncProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked when channel was full")
	}
}

func TestHandler_MessagePayloads(t *testing.T) {
	srv := quietServer(nil)
	h := NewHandler(srv, log.New(io.Discard, "", 0))

	h.OnSyncProgress("venue-1", syncer.Progress{Current: 100, Total: 250})
	h.OnSyncComplete(syncer.Result{VenueID: "venue-1", Full: true, Records: 250})
	h.OnCheckInDeferred(&schema.OutboxEntry{
		VenueID: "venue-1", Name: "Ada", Method: schema.MethodWalkIn,
	})
	h.OnReplayComplete("venue-1", checkin.ReplayStats{Attempted: 3, Delivered: 2, Failed: 1})

	wantTypes := []MessageType{
		MessageTypeSyncProgress,
		MessageTypeSyncComplete,
		MessageTypeCheckInDeferred,
		MessageTypeReplayComplete,
	}
	for _, want := range wantTypes {
		select {
		case msg := <-srv.broadcast:
			if msg.Type != want {
				t.Errorf("message type = %s, want %s", msg.Type, want)
			}
			switch msg.Type {
			case MessageTypeSyncProgress:
				var data SyncProgressData
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					t.Fatalf("unmarshal progress: %v", err)
				}
				if data.Current != 100 || data.Total != 250 {
					t.Errorf("progress = %+v", data)
				}
			case MessageTypeReplayComplete:
				var data ReplayCompleteData
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					t.Fatalf("unmarshal replay: %v", err)
				}
				if data.Delivered != 2 || data.Failed != 1 {
					t.Errorf("replay = %+v", data)
				}
			}
		default:
			t.Fatalf("no queued message for type %s", want)
		}
	}
}

func TestStartStop(t *testing.T) {
	srv := NewServer(&Config{
		Port:   0,
		Logger: log.New(io.Discard, "", 0),
	})
	// Port 0 lets the OS pick; NewServer defaults 0 to 8484, so override
	// the address directly for an ephemeral port.
	srv.addr = ":0"

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	_, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("bad listen address %q: %v", srv.Addr(), err)
	}
	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		t.Fatalf("GET /health on running server failed: %v", err)
	}
	resp.Body.Close()

	if err := srv.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
}
