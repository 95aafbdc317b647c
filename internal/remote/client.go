// Package remote is the client for the mission API: it submits visit events,
// confirms QR scans and fetches geofence definition sets. It is the only
// component that talks to the network.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geofence"
)

const (
	defaultTimeout   = 15 * time.Second
	reachableTimeout = 2 * time.Second
)

// Client communicates with the mission API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client targeting the given API base URL. token may be empty
// when the deployment does not require bearer auth.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// VisitRequest is the body shared by the visit-location and scan-qr
// endpoints.
type VisitRequest struct {
	LocationID string  `json:"locationId"`
	Action     string  `json:"action"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	QRCodeData string  `json:"qrCodeData,omitempty"`
}

// VisitLocation reports a location visit. Any 2xx response means the remote
// accepted the event.
func (c *Client) VisitLocation(ctx context.Context, missionID string, req VisitRequest) error {
	return c.post(ctx, fmt.Sprintf("/missions/%s/visit-location", missionID), req)
}

// ScanQR confirms a QR-scan action at a location. Same wire shape as
// VisitLocation; the remote applies scan-specific validation.
func (c *Client) ScanQR(ctx context.Context, missionID string, req VisitRequest) error {
	return c.post(ctx, fmt.Sprintf("/missions/%s/scan-qr", missionID), req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// locationsResponse mirrors GET /missions/{id}/locations.
type locationsResponse struct {
	Locations []geofence.Definition `json:"locations"`
}

// Locations fetches the current geofence definition set for a mission.
func (c *Client) Locations(ctx context.Context, missionID string) ([]geofence.Definition, error) {
	url := fmt.Sprintf("%s/missions/%s/locations", c.baseURL, missionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching locations for mission %s: %w", missionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var lr locationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decoding locations response: %w", err)
	}
	for i := range lr.Locations {
		lr.Locations[i].MissionID = missionID
	}
	return lr.Locations, nil
}

// Reachable reports whether the API answers at all. Any HTTP response counts:
// this probes connectivity, not authorization.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, reachableTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
