package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/tillpoint/patron/internal/checkin"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/syncer"
)

// SyncProgressData is the payload for sync_progress messages.
type SyncProgressData struct {
	VenueID string `json:"venue_id"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// SyncCompleteData is the payload for sync_complete messages.
type SyncCompleteData struct {
	VenueID  string        `json:"venue_id"`
	Full     bool          `json:"full"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// CheckInDeferredData is the payload for checkin_deferred messages.
type CheckInDeferredData struct {
	VenueID string `json:"venue_id"`
	Name    string `json:"name"`
	Method  string `json:"method"`
}

// ReplayCompleteData is the payload for replay_complete messages.
type ReplayCompleteData struct {
	VenueID   string `json:"venue_id"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// Handler bridges sync engine and check-in events to dashboard broadcasts.
// Its methods are wired into the syncer and checkin callback hooks.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnSyncProgress forwards per-page progress to connected clients.
func (h *Handler) OnSyncProgress(venueID string, p syncer.Progress) {
	h.send(MessageTypeSyncProgress, SyncProgressData{
		VenueID: venueID,
		Current: p.Current,
		Total:   p.Total,
	})
}

// OnSyncComplete forwards pass completion to connected clients.
func (h *Handler) OnSyncComplete(r syncer.Result) {
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		VenueID:  r.VenueID,
		Full:     r.Full,
		Records:  r.Records,
		Duration: r.Duration,
	})
}

// OnCheckInDeferred announces a check-in that fell back to the outbox.
func (h *Handler) OnCheckInDeferred(entry *schema.OutboxEntry) {
	h.send(MessageTypeCheckInDeferred, CheckInDeferredData{
		VenueID: entry.VenueID,
		Name:    entry.Name,
		Method:  string(entry.Method),
	})
}

// OnReplayComplete announces the outcome of an outbox replay pass.
func (h *Handler) OnReplayComplete(venueID string, stats checkin.ReplayStats) {
	h.send(MessageTypeReplayComplete, ReplayCompleteData{
		VenueID:   venueID,
		Attempted: stats.Attempted,
		Delivered: stats.Delivered,
		Failed:    stats.Failed,
	})
}

func (h *Handler) send(typ MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
