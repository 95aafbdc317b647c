package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
	"github.com/fieldquest/fieldtrack/internal/geofence"
	"github.com/fieldquest/fieldtrack/internal/syncer"
)

type fakeStatusStore struct {
	pending     int
	pendingErr  error
	geofences   []geofence.Definition
	geofenceErr error
}

func (s *fakeStatusStore) UnsyncedCount() (int, error) {
	return s.pending, s.pendingErr
}

func (s *fakeStatusStore) Geofences(missionID string) ([]geofence.Definition, error) {
	return s.geofences, s.geofenceErr
}

type fakeSyncer struct {
	inFlight bool
	result   syncer.SyncResult
	last     *syncer.SyncResult
	gotScope string
}

func (s *fakeSyncer) SyncAll(ctx context.Context, missionID string) syncer.SyncResult {
	s.gotScope = missionID
	return s.result
}

func (s *fakeSyncer) InFlight() bool { return s.inFlight }

func (s *fakeSyncer) LastResult() (syncer.SyncResult, bool) {
	if s.last == nil {
		return syncer.SyncResult{}, false
	}
	return *s.last, true
}

type fakeSession struct {
	sample  *geo.PositionSample
	reached int
	fences  []geofence.FenceState
}

func (s *fakeSession) LastSample() (geo.PositionSample, bool) {
	if s.sample == nil {
		return geo.PositionSample{}, false
	}
	return *s.sample, true
}

func (s *fakeSession) ReachedCount() int { return s.reached }

func (s *fakeSession) FenceStates() []geofence.FenceState { return s.fences }

type fakeOnline bool

func (o fakeOnline) Online() bool { return bool(o) }

func testDeps() Deps {
	return Deps{
		Store:   &fakeStatusStore{},
		Syncer:  &fakeSyncer{},
		Session: &fakeSession{},
		Conn:    fakeOnline(true),
	}
}

func TestHealth(t *testing.T) {
	handler := NewHandler(testDeps())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	sample := geo.PositionSample{Latitude: 40.7128, Longitude: -77.8547, CapturedAt: time.Now().UTC()}
	deps := Deps{
		Store:  &fakeStatusStore{pending: 4},
		Syncer: &fakeSyncer{inFlight: true, last: &syncer.SyncResult{Success: true, Synced: 2}},
		Session: &fakeSession{
			sample:  &sample,
			reached: 3,
			fences:  []geofence.FenceState{{GeofenceID: "loc-1", Inside: true, Confidence: 1}},
		},
		Conn: fakeOnline(true),
	}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Online       bool                  `json:"online"`
		Pending      int                   `json:"pending"`
		SyncInFlight bool                  `json:"syncInFlight"`
		Reached      int                   `json:"reached"`
		LastPosition *geo.PositionSample   `json:"lastPosition"`
		LastSync     *syncer.SyncResult    `json:"lastSync"`
		Fences       []geofence.FenceState `json:"fences"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Online || resp.Pending != 4 || !resp.SyncInFlight || resp.Reached != 3 {
		t.Errorf("response = %+v", resp)
	}
	if resp.LastPosition == nil || resp.LastPosition.Latitude != 40.7128 {
		t.Errorf("lastPosition = %+v", resp.LastPosition)
	}
	if resp.LastSync == nil || resp.LastSync.Synced != 2 {
		t.Errorf("lastSync = %+v", resp.LastSync)
	}
	if len(resp.Fences) != 1 || !resp.Fences[0].Inside {
		t.Errorf("fences = %+v", resp.Fences)
	}
}

func TestStatusOmitsAbsentFields(t *testing.T) {
	handler := NewHandler(testDeps())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, present := raw["lastPosition"]; present {
		t.Error("lastPosition should be omitted before the first sample")
	}
	if _, present := raw["lastSync"]; present {
		t.Error("lastSync should be omitted before the first pass")
	}
}

func TestStatusStoreError(t *testing.T) {
	deps := testDeps()
	deps.Store = &fakeStatusStore{pendingErr: errors.New("no such table")}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSyncTrigger(t *testing.T) {
	fake := &fakeSyncer{result: syncer.SyncResult{Success: true, Synced: 2}}
	deps := testDeps()
	deps.Syncer = fake
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync?mission=mission-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body)
	}
	if fake.gotScope != "mission-1" {
		t.Errorf("mission scope = %q", fake.gotScope)
	}

	var result syncer.SyncResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Synced != 2 {
		t.Errorf("synced = %d, want 2", result.Synced)
	}
}

func TestSyncConflictWhenInFlight(t *testing.T) {
	deps := testDeps()
	deps.Syncer = &fakeSyncer{inFlight: true}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestSyncConflictWhenSkipped(t *testing.T) {
	deps := testDeps()
	deps.Syncer = &fakeSyncer{result: syncer.SyncResult{Skipped: true}}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestLocations(t *testing.T) {
	deps := testDeps()
	deps.Store = &fakeStatusStore{geofences: []geofence.Definition{
		{ID: "loc-1", MissionID: "mission-1", Name: "Old Main Fountain", Kind: geofence.KindCheckpoint},
	}}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/missions/mission-1/locations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Locations []geofence.Definition `json:"locations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Locations) != 1 || resp.Locations[0].ID != "loc-1" {
		t.Errorf("locations = %+v", resp.Locations)
	}
}

func TestLocationsDegradesOnCacheError(t *testing.T) {
	deps := testDeps()
	deps.Store = &fakeStatusStore{geofenceErr: errors.New("disk error")}
	handler := NewHandler(deps)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/missions/mission-1/locations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want degraded 200", rec.Code)
	}
	var resp struct {
		Locations []geofence.Definition `json:"locations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Locations == nil || len(resp.Locations) != 0 {
		t.Errorf("locations = %+v, want empty list", resp.Locations)
	}
}
