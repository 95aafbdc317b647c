// Package httpapi exposes the runtime's state on a loopback HTTP surface so
// a UI (or an operator with curl) can observe pending counts, sync outcomes
// and the current position without polling storage.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldquest/fieldtrack/internal/geo"
	"github.com/fieldquest/fieldtrack/internal/geofence"
	"github.com/fieldquest/fieldtrack/internal/syncer"
)

// StatusStore is the read-only slice of the durable store the API serves.
type StatusStore interface {
	UnsyncedCount() (int, error)
	Geofences(missionID string) ([]geofence.Definition, error)
}

// Syncer is the sync engine surface: manual trigger plus last outcome.
type Syncer interface {
	SyncAll(ctx context.Context, missionID string) syncer.SyncResult
	InFlight() bool
	LastResult() (syncer.SyncResult, bool)
}

// SessionInfo reports the tracker session state.
type SessionInfo interface {
	LastSample() (geo.PositionSample, bool)
	ReachedCount() int
	FenceStates() []geofence.FenceState
}

// Online reports the connectivity monitor state.
type Online interface {
	Online() bool
}

type Deps struct {
	Store   StatusStore
	Syncer  Syncer
	Session SessionInfo
	Conn    Online
}

// NewHandler builds the status router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/status", handleStatus(deps))
	r.Post("/v1/sync", handleSync(deps))
	r.Get("/v1/missions/{missionID}/locations", handleLocations(deps))

	return r
}

type statusResponse struct {
	Online       bool                  `json:"online"`
	Pending      int                   `json:"pending"`
	SyncInFlight bool                  `json:"syncInFlight"`
	Reached      int                   `json:"reached"`
	LastPosition *geo.PositionSample   `json:"lastPosition,omitempty"`
	LastSync     *syncer.SyncResult    `json:"lastSync,omitempty"`
	Fences       []geofence.FenceState `json:"fences,omitempty"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := deps.Store.UnsyncedCount()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "counting pending visits: %v", err)
			return
		}

		resp := statusResponse{
			Online:       deps.Conn.Online(),
			Pending:      pending,
			SyncInFlight: deps.Syncer.InFlight(),
			Reached:      deps.Session.ReachedCount(),
			Fences:       deps.Session.FenceStates(),
		}
		if sample, ok := deps.Session.LastSample(); ok {
			resp.LastPosition = &sample
		}
		if last, ok := deps.Syncer.LastResult(); ok {
			resp.LastSync = &last
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Syncer.InFlight() {
			httpError(w, http.StatusConflict, "a sync pass is already in flight")
			return
		}
		result := deps.Syncer.SyncAll(r.Context(), r.URL.Query().Get("mission"))
		if result.Skipped {
			// Lost the race to another trigger.
			httpError(w, http.StatusConflict, "a sync pass is already in flight")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleLocations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		missionID := chi.URLParam(r, "missionID")
		defs, err := deps.Store.Geofences(missionID)
		if err != nil {
			// Cache read failures degrade to empty, same as the engine sees.
			slog.Warn("reading geofence cache for status API failed", "mission_id", missionID, "error", err)
			defs = nil
		}
		if defs == nil {
			defs = []geofence.Definition{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"locations": defs})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
