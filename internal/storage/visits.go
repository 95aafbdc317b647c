package storage

import (
	"fmt"
	"strings"
	"time"
)

// Retention windows for the opportunistic purge. Geofence definitions go
// stale after a week; visit records are kept for a month regardless of sync
// state so they remain available as a local audit trail.
const (
	GeofenceRetention = 7 * 24 * time.Hour
	VisitRetention    = 30 * 24 * time.Hour
)

// EnqueueVisit appends a record to the visit queue with synced=false. The
// append is durable before the call returns; a write failure here must
// propagate to the caller, because silently dropping a visit event is data
// loss the sync engine can never recover from.
//
// captured_at is stored as integer unix nanoseconds, not formatted text:
// variable-width text timestamps sort lexicographically, which inverts
// sub-second capture times.
func (s *Store) EnqueueVisit(v VisitRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO visit_queue (id, captured_at, mission_id, geofence_id, latitude, longitude, accuracy_m, action, payload, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		v.ID, v.CapturedAt.UTC().UnixNano(), v.MissionID, v.GeofenceID,
		v.Latitude, v.Longitude, v.AccuracyMeters, v.Action, v.Payload,
	)
	if err != nil {
		return fmt.Errorf("enqueueing visit %s: %w", v.ID, err)
	}
	return nil
}

// Unsynced returns all queued records not yet confirmed by the remote API, in
// insertion order. Used exclusively by the sync engine.
func (s *Store) Unsynced() ([]VisitRecord, error) {
	return s.queryVisits("WHERE synced = 0")
}

// Visits returns the full queue, synced and unsynced, in insertion order.
func (s *Store) Visits() ([]VisitRecord, error) {
	return s.queryVisits("")
}

func (s *Store) queryVisits(where string) ([]VisitRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, captured_at, mission_id, geofence_id, latitude, longitude, accuracy_m, action, payload, synced
		FROM visit_queue ` + where + " ORDER BY captured_at ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []VisitRecord
	for rows.Next() {
		var v VisitRecord
		var capturedAt int64
		if err := rows.Scan(&v.ID, &capturedAt, &v.MissionID, &v.GeofenceID, &v.Latitude, &v.Longitude, &v.AccuracyMeters, &v.Action, &v.Payload, &v.Synced); err != nil {
			return nil, err
		}
		v.CapturedAt = time.Unix(0, capturedAt).UTC()
		records = append(records, v)
	}
	return records, rows.Err()
}

// UnsyncedCount returns how many records are still awaiting confirmation.
func (s *Store) UnsyncedCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM visit_queue WHERE synced = 0").Scan(&n)
	return n, err
}

// MarkSynced flips the synced flag for the given record IDs. Called only
// after confirmed remote acceptance, never speculatively; a record marked
// synced is never re-queued.
func (s *Store) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec("UPDATE visit_queue SET synced = 1 WHERE id IN (?"+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("marking visits synced: %w", err)
	}
	return nil
}

// PurgeOlderThan removes geofence cache rows and visit records past their
// retention windows, measured back from now. Visit records are pruned
// regardless of sync state. Run opportunistically (on store open, from a
// background goroutine), never on a foreground path.
func (s *Store) PurgeOlderThan(geofenceRetention, visitRetention time.Duration) (int64, error) {
	now := time.Now().UTC()

	res, err := s.db.Exec("DELETE FROM mission_geofences WHERE cached_at < ?",
		now.Add(-geofenceRetention).Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purging geofence cache: %w", err)
	}
	purged, _ := res.RowsAffected()

	res, err = s.db.Exec("DELETE FROM visit_queue WHERE captured_at < ?",
		now.Add(-visitRetention).UnixNano())
	if err != nil {
		return purged, fmt.Errorf("purging visit queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return purged + n, nil
}
