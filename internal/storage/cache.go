package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// lastKnownKey is the fixed cache key for the single-slot last-known
// position. Every accepted sample overwrites it; samples are never queued.
const lastKnownKey = "position/last-known"

// PutEntry writes (or overwrites) a generic cache entry.
func (s *Store) PutEntry(key string, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, payload, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		key, payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("caching entry %q: %w", key, err)
	}
	return nil
}

// Entry reads a cache entry, treating anything older than maxAge as a miss.
// Misses return ErrNotFound; expired entries are deleted lazily on read.
func (s *Store) Entry(key string, maxAge time.Duration) (CacheEntry, error) {
	var e CacheEntry
	var cachedAt string
	err := s.db.QueryRow("SELECT key, payload, cached_at FROM cache_entries WHERE key = ?", key).
		Scan(&e.Key, &e.Payload, &cachedAt)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, err
	}
	e.CachedAt, err = time.Parse(time.RFC3339Nano, cachedAt)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("parsing cached_at for %q: %w", key, err)
	}
	if e.Expired(time.Now().UTC(), maxAge) {
		s.DeleteEntry(key)
		return CacheEntry{}, ErrNotFound
	}
	return e, nil
}

// StaleEntry reads a cache entry ignoring age, for callers that prefer stale
// data over nothing when the network is down.
func (s *Store) StaleEntry(key string) (CacheEntry, error) {
	return s.Entry(key, 0)
}

// DeleteEntry removes a cache entry. Deleting a missing key is not an error.
func (s *Store) DeleteEntry(key string) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// PutLastKnown overwrites the single-slot last-known position cache.
func (s *Store) PutLastKnown(sample geo.PositionSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encoding last-known sample: %w", err)
	}
	return s.PutEntry(lastKnownKey, payload)
}

// LastKnown returns the cached last-known position if one exists and is
// younger than maxAge. ErrNotFound means no usable cached position.
func (s *Store) LastKnown(maxAge time.Duration) (geo.PositionSample, error) {
	e, err := s.Entry(lastKnownKey, maxAge)
	if err != nil {
		return geo.PositionSample{}, err
	}
	var sample geo.PositionSample
	if err := json.Unmarshal(e.Payload, &sample); err != nil {
		return geo.PositionSample{}, fmt.Errorf("decoding last-known sample: %w", err)
	}
	return sample, nil
}
