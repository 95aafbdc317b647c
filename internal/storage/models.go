package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// VisitRecord is one entry in the durable visit queue. Records are created
// unsynced when a geofence fires (or a QR code is scanned) and flipped to
// synced only after the remote API has confirmed acceptance. Synced records
// stay on disk as an audit trail until the retention purge removes them.
type VisitRecord struct {
	ID             string
	CapturedAt     time.Time
	MissionID      string
	GeofenceID     string
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	Action         string
	Payload        string // optional JSON blob (QR code data, observation notes)
	Synced         bool
}

// CacheEntry is a generic key-indexed cache row used for map tiles, mission
// metadata and the single-slot last-known position. Validity is decided on
// read: an entry older than the caller's max age is treated as a miss.
type CacheEntry struct {
	Key      string
	Payload  []byte
	CachedAt time.Time
}

// Expired reports whether the entry is older than maxAge at time now.
// A non-positive maxAge means entries never expire.
func (e CacheEntry) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(e.CachedAt) >= maxAge
}
