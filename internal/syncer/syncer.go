// Package syncer drains the durable visit queue against the remote API. It
// is trigger-driven: connectivity transitions, a periodic timer and manual
// calls all funnel into the same single-flight sync pass.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldquest/fieldtrack/internal/remote"
	"github.com/fieldquest/fieldtrack/internal/storage"
)

// DefaultInterval is the periodic sync cadence. Deliberately coarse: failed
// records get retried on the next tick, which gives a natural backoff without
// per-record counters.
const DefaultInterval = 5 * time.Minute

// VisitQueue is the slice of the durable store the engine needs.
type VisitQueue interface {
	Unsynced() ([]storage.VisitRecord, error)
	MarkSynced(ids []string) error
}

// VisitSender submits visit events to the remote API.
type VisitSender interface {
	VisitLocation(ctx context.Context, missionID string, req remote.VisitRequest) error
	ScanQR(ctx context.Context, missionID string, req remote.VisitRequest) error
}

// Connectivity is the platform online/offline signal.
type Connectivity interface {
	Online() bool
	Changes() <-chan bool
}

// SyncError pairs a failed record with a printable cause, for operator
// visibility. Failures are data, not exceptions: a partial sync is a normal
// operating condition.
type SyncError struct {
	Record storage.VisitRecord `json:"record"`
	Cause  string              `json:"cause"`
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Success bool        `json:"success"` // all attempted records accepted
	Skipped bool        `json:"skipped"` // trigger dropped: a pass was already in flight
	Synced  int         `json:"synced"`
	Failed  int         `json:"failed"`
	Errors  []SyncError `json:"errors,omitempty"`
}

// Engine replays queued visit records against the remote API. Only one pass
// runs at a time; triggers arriving mid-pass are dropped, not queued. The
// next periodic tick picks up whatever remains unsynced.
type Engine struct {
	queue    VisitQueue
	sender   VisitSender
	interval time.Duration
	logger   *slog.Logger

	inFlight atomic.Bool

	mu        sync.Mutex
	listeners map[int]func(SyncResult)
	nextID    int
	last      *SyncResult
}

// New creates an Engine. A non-positive interval selects the 5 minute
// default.
func New(queue VisitQueue, sender VisitSender, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		queue:     queue,
		sender:    sender,
		interval:  interval,
		logger:    slog.Default(),
		listeners: make(map[int]func(SyncResult)),
	}
}

// Subscribe registers a listener for completed sync results, so the UI layer
// can reflect pending/failed counts without polling storage. The returned
// function unsubscribes.
func (e *Engine) Subscribe(fn func(SyncResult)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// InFlight reports whether a sync pass is currently running.
func (e *Engine) InFlight() bool {
	return e.inFlight.Load()
}

// LastResult returns the most recent completed pass, if any.
func (e *Engine) LastResult() (SyncResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return SyncResult{}, false
	}
	return *e.last, true
}

// SyncAll drains the unsynced queue, optionally filtered to one mission.
// Records are processed sequentially in insertion order, one request each;
// a record is marked synced immediately on acceptance so a crash mid-pass
// never re-syncs confirmed records. Failed records stay queued for the next
// trigger. SyncAll never returns an error: failures are accumulated in the
// result.
//
// Cancelling ctx does not abort the pass: an in-flight pass always runs to
// completion so the queue state stays coherent with what the remote has
// accepted. Each send is still bounded by the sender's own request timeout.
func (e *Engine) SyncAll(ctx context.Context, missionID string) SyncResult {
	if !e.inFlight.CompareAndSwap(false, true) {
		return SyncResult{Skipped: true}
	}
	defer e.inFlight.Store(false)

	// Detached from the trigger's cancellation, per the contract above.
	sendCtx := context.WithoutCancel(ctx)

	result := SyncResult{Success: true}

	records, err := e.queue.Unsynced()
	if err != nil {
		// Reading the queue failed; nothing to do until storage recovers.
		e.logger.Error("reading unsynced queue failed", "error", err)
		result.Success = false
		e.finish(result)
		return result
	}

	for _, rec := range records {
		if missionID != "" && rec.MissionID != missionID {
			continue
		}

		if err := e.send(sendCtx, rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{Record: rec, Cause: err.Error()})
			e.logger.Warn("visit sync failed", "visit_id", rec.ID, "geofence_id", rec.GeofenceID, "error", err)
			continue
		}

		if err := e.queue.MarkSynced([]string{rec.ID}); err != nil {
			// Remote accepted but the flag write failed; the record will be
			// re-sent next pass and deduplicated remotely.
			result.Failed++
			result.Errors = append(result.Errors, SyncError{Record: rec, Cause: err.Error()})
			e.logger.Error("marking visit synced failed", "visit_id", rec.ID, "error", err)
			continue
		}
		result.Synced++
	}

	result.Success = result.Failed == 0
	e.finish(result)
	return result
}

func (e *Engine) send(ctx context.Context, rec storage.VisitRecord) error {
	req := remote.VisitRequest{
		LocationID: rec.GeofenceID,
		Action:     rec.Action,
		Latitude:   rec.Latitude,
		Longitude:  rec.Longitude,
		Accuracy:   rec.AccuracyMeters,
	}
	if rec.Action == "qr_scan" {
		req.QRCodeData = rec.Payload
		return e.sender.ScanQR(ctx, rec.MissionID, req)
	}
	return e.sender.VisitLocation(ctx, rec.MissionID, req)
}

func (e *Engine) finish(result SyncResult) {
	e.mu.Lock()
	e.last = &result
	listeners := make([]func(SyncResult), 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(result)
	}
}

// Run reacts to connectivity transitions and the periodic timer until ctx is
// cancelled. An offline-to-online transition triggers a pass immediately; the
// timer only proceeds while online and no pass is in flight.
func (e *Engine) Run(ctx context.Context, conn Connectivity) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-conn.Changes():
			if !ok {
				return
			}
			if online {
				e.logger.Info("connectivity restored, syncing")
				e.SyncAll(ctx, "")
			}
		case <-ticker.C:
			if conn.Online() && !e.InFlight() {
				e.SyncAll(ctx, "")
			}
		}
	}
}
