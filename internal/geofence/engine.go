package geofence

import (
	"fmt"
	"math"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// DefaultProximityThreshold is how close (in meters) a geofence must be
// before a proximity alert fires.
const DefaultProximityThreshold = 200.0

// alertBucketMeters groups alert distances into coarse increments so that
// alerts do not re-fire on every sample while slowly approaching.
const alertBucketMeters = 50.0

// Result is the outcome of one evaluation pass.
type Result struct {
	Reached []Definition
	Alerts  []Alert
}

// Engine classifies geofences against position samples. It is stateful per
// session: a geofence that has fired "reached" never fires again for the
// lifetime of the engine, and alert deduplication buckets persist between
// evaluations until ClearAlertBuckets is called.
//
// The reached set is deliberately in-memory only. A process restart may
// re-fire an arrival for a geofence visited in a previous session; the remote
// API is expected to treat visit submissions idempotently.
//
// Engine is not safe for concurrent use; the tracker session serializes
// evaluation passes.
type Engine struct {
	proximityThreshold float64
	reached            map[string]struct{}
	alerted            map[string]struct{}
}

// NewEngine creates an Engine with an empty reached set. A non-positive
// proximityThreshold selects the 200 m default.
func NewEngine(proximityThreshold float64) *Engine {
	if proximityThreshold <= 0 {
		proximityThreshold = DefaultProximityThreshold
	}
	return &Engine{
		proximityThreshold: proximityThreshold,
		reached:            make(map[string]struct{}),
		alerted:            make(map[string]struct{}),
	}
}

// Evaluate classifies every definition against the sample. Classification per
// geofence, in order: inside the radius means reached (once per session per
// ID); within the proximity threshold and not yet reached means near, which
// emits an alert unless one already fired for the same 50 m distance bucket;
// anything further is far and produces nothing.
//
// The defs slice is a borrowed read-only view; Evaluate never retains it.
func (e *Engine) Evaluate(sample geo.PositionSample, defs []Definition) Result {
	var res Result
	for _, d := range defs {
		distance := sample.DistanceTo(d.Latitude, d.Longitude)

		if distance <= d.RadiusMeters {
			if _, ok := e.reached[d.ID]; ok {
				continue
			}
			e.reached[d.ID] = struct{}{}
			res.Reached = append(res.Reached, d)
			continue
		}

		if distance <= e.proximityThreshold {
			if _, ok := e.reached[d.ID]; ok {
				continue
			}
			bucket := alertKey(d.ID, distance)
			if _, ok := e.alerted[bucket]; ok {
				continue
			}
			e.alerted[bucket] = struct{}{}
			res.Alerts = append(res.Alerts, Alert{
				GeofenceID:     d.ID,
				MissionID:      d.MissionID,
				Name:           d.Name,
				DistanceMeters: math.Round(distance),
				Kind:           d.Kind,
				Message:        alertMessage(d, distance),
			})
		}
	}
	return res
}

// HasReached reports whether the geofence already fired "reached" this session.
func (e *Engine) HasReached(id string) bool {
	_, ok := e.reached[id]
	return ok
}

// ReachedCount returns how many distinct geofences have been reached this session.
func (e *Engine) ReachedCount() int {
	return len(e.reached)
}

// ClearAlertBuckets drops alert deduplication state so a geofence the user
// left and re-approaches can alert again. The tracker calls this once per
// watch-interval tick; the reached set is unaffected.
func (e *Engine) ClearAlertBuckets() {
	clear(e.alerted)
}

func alertKey(id string, distance float64) string {
	return fmt.Sprintf("%s-%d", id, int(distance/alertBucketMeters))
}
