// Package fault provides single instances of the errors the sync core can
// return, so callers compare with errors.Is instead of matching strings.
package fault

import "errors"

var (
	// ErrSyncInFlight is returned when a sync pass is requested while
	// another pass is already running. Callers treat it as a no-op.
	ErrSyncInFlight = errors.New("sync already in progress")

	// ErrNotReady is returned when an operation needs a configured venue
	// or remote client and neither is available yet.
	ErrNotReady = errors.New("no venue or remote directory configured")

	// ErrNoRemote is returned by the live check-in path when no remote
	// client is configured; the check-in is still queued locally.
	ErrNoRemote = errors.New("remote directory not configured")

	// ErrRemoteUnavailable wraps transport-level failures talking to the
	// remote directory. Retried only on the next scheduled tick.
	ErrRemoteUnavailable = errors.New("remote directory unavailable")
)
