package storage

import (
	"fmt"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geofence"
)

// CacheGeofences upserts the full definition set for a mission. Re-fetching
// the same set is idempotent: rows are replaced by ID, so a fresher
// definition supersedes the cached one without duplicating it.
func (s *Store) CacheGeofences(missionID string, defs []geofence.Definition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning geofence cache transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range defs {
		if _, err := tx.Exec(`
			INSERT INTO mission_geofences (id, mission_id, stage_id, name, latitude, longitude, radius_m, kind, required_action, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				mission_id = excluded.mission_id,
				stage_id = excluded.stage_id,
				name = excluded.name,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				radius_m = excluded.radius_m,
				kind = excluded.kind,
				required_action = excluded.required_action,
				cached_at = excluded.cached_at`,
			d.ID, missionID, d.StageID, d.Name, d.Latitude, d.Longitude,
			d.RadiusMeters, string(d.Kind), d.RequiredAction, now,
		); err != nil {
			return fmt.Errorf("caching geofence %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Geofences returns all cached definitions for a mission. A cache miss is an
// empty slice, never an error: offline proximity detection simply has nothing
// to evaluate.
func (s *Store) Geofences(missionID string) ([]geofence.Definition, error) {
	rows, err := s.db.Query(`
		SELECT id, mission_id, stage_id, name, latitude, longitude, radius_m, kind, required_action
		FROM mission_geofences WHERE mission_id = ? ORDER BY id ASC`, missionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []geofence.Definition
	for rows.Next() {
		var d geofence.Definition
		var kind string
		if err := rows.Scan(&d.ID, &d.MissionID, &d.StageID, &d.Name, &d.Latitude, &d.Longitude, &d.RadiusMeters, &kind, &d.RequiredAction); err != nil {
			return nil, err
		}
		d.Kind = geofence.Kind(kind)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// InvalidateGeofences drops all cached definitions for a mission.
func (s *Store) InvalidateGeofences(missionID string) error {
	_, err := s.db.Exec("DELETE FROM mission_geofences WHERE mission_id = ?", missionID)
	return err
}
