package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldquest/fieldtrack/internal/geofence"
)

func TestVisitLocation(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody VisitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "test-token")
	req := VisitRequest{
		LocationID: "loc-1",
		Action:     "check_in",
		Latitude:   40.7128,
		Longitude:  -77.8547,
		Accuracy:   12.5,
	}
	if err := client.VisitLocation(context.Background(), "mission-1", req); err != nil {
		t.Fatalf("VisitLocation: %v", err)
	}

	if gotPath != "/missions/mission-1/visit-location" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.LocationID != "loc-1" || gotBody.Action != "check_in" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestScanQRPath(t *testing.T) {
	var gotPath string
	var gotBody VisitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.URL, "")
	req := VisitRequest{LocationID: "loc-2", Action: "qr_scan", QRCodeData: "FQ-001"}
	if err := client.ScanQR(context.Background(), "mission-1", req); err != nil {
		t.Fatalf("ScanQR: %v", err)
	}
	if gotPath != "/missions/mission-1/scan-qr" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.QRCodeData != "FQ-001" {
		t.Errorf("qrCodeData = %q, want FQ-001", gotBody.QRCodeData)
	}
}

func TestVisitLocationNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "")
	err := client.VisitLocation(context.Background(), "mission-1", VisitRequest{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestLocations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/missions/mission-1/locations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"locations":[
			{"id":"loc-1","name":"Old Main Fountain","latitude":40.7128,"longitude":-77.8547,"radius":50,"type":"checkpoint"},
			{"id":"loc-2","name":"Library Steps","latitude":40.7135,"longitude":-77.8601,"radius":75,"type":"challenge","requiredAction":"qr_scan"}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	defs, err := client.Locations(context.Background(), "mission-1")
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].ID != "loc-1" || defs[0].Kind != geofence.KindCheckpoint {
		t.Errorf("defs[0] = %+v", defs[0])
	}
	// The client stamps the mission ID; the wire payload omits it.
	if defs[0].MissionID != "mission-1" || defs[1].MissionID != "mission-1" {
		t.Errorf("MissionID not set: %q, %q", defs[0].MissionID, defs[1].MissionID)
	}
	if defs[1].RequiredAction != "qr_scan" {
		t.Errorf("RequiredAction = %q", defs[1].RequiredAction)
	}
}

func TestLocationsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "")
	if _, err := client.Locations(context.Background(), "mission-1"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		// Even an error status means the API is reachable.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	client := New(server.URL, "")
	if !client.Reachable(context.Background()) {
		t.Error("Reachable = false for a responding server")
	}

	server.Close()
	if client.Reachable(context.Background()) {
		t.Error("Reachable = true after server shutdown")
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL+"/", "")
	if err := client.VisitLocation(context.Background(), "m", VisitRequest{}); err != nil {
		t.Fatalf("VisitLocation: %v", err)
	}
	if gotPath != "/missions/m/visit-location" {
		t.Errorf("path = %q, double slash not collapsed", gotPath)
	}
}
