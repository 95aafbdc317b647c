package geofence

import (
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// SmootherOptions tune how aggressively inside/outside flapping is damped.
type SmootherOptions struct {
	Window           time.Duration // how long readings stay relevant
	RequiredReadings int           // readings needed for full confidence
	MinConfidence    float64       // 0-1, threshold to commit a transition
}

// DefaultSmootherOptions returns the tuning used in the field: a 5 second
// window, 3 consistent readings, 70% confidence.
func DefaultSmootherOptions() SmootherOptions {
	return SmootherOptions{
		Window:           5 * time.Second,
		RequiredReadings: 3,
		MinConfidence:    0.7,
	}
}

type reading struct {
	at       time.Time
	inside   bool
	distance float64
	accuracy float64
}

// FenceState is the smoothed view of one geofence: whether the user is
// considered inside, with what confidence, and when the boundary was last
// crossed in either direction.
type FenceState struct {
	GeofenceID string    `json:"geofenceId"`
	Inside     bool      `json:"inside"`
	Confidence float64   `json:"confidence"`
	EnteredAt  time.Time `json:"enteredAt,omitzero"`
	ExitedAt   time.Time `json:"exitedAt,omitzero"`

	readings []reading
}

// Smoother debounces geofence boundary transitions against GPS jitter. A raw
// inside/outside flip only commits once enough recent readings agree. It is
// an optional front-end for callers that need hysteresis (the engine itself
// classifies each sample independently).
type Smoother struct {
	opts   SmootherOptions
	states map[string]*FenceState
	now    func() time.Time
}

// NewSmoother creates a Smoother; zero-valued options fall back to defaults.
func NewSmoother(opts SmootherOptions) *Smoother {
	def := DefaultSmootherOptions()
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.RequiredReadings <= 0 {
		opts.RequiredReadings = def.RequiredReadings
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = def.MinConfidence
	}
	return &Smoother{
		opts:   opts,
		states: make(map[string]*FenceState),
		now:    time.Now,
	}
}

// Observe folds one sample into the per-geofence reading window and returns
// the resulting state. Entered/Exited timestamps only move when the smoothed
// inside flag actually transitions.
func (sm *Smoother) Observe(d Definition, s geo.PositionSample) FenceState {
	now := sm.now()
	distance := s.DistanceTo(d.Latitude, d.Longitude)
	inside := distance <= d.RadiusMeters

	st, ok := sm.states[d.ID]
	if !ok {
		st = &FenceState{GeofenceID: d.ID}
		sm.states[d.ID] = st
	}

	st.readings = append(st.readings, reading{
		at:       now,
		inside:   inside,
		distance: distance,
		accuracy: s.AccuracyMeters,
	})

	// Drop readings that aged out of the window.
	cutoff := now.Add(-sm.opts.Window)
	kept := st.readings[:0]
	for _, r := range st.readings {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	st.readings = kept

	if len(st.readings) >= sm.opts.RequiredReadings {
		recent := st.readings[len(st.readings)-sm.opts.RequiredReadings:]
		consistent := 0
		for _, r := range recent {
			if r.inside == inside {
				consistent++
			}
		}
		st.Confidence = float64(consistent) / float64(len(recent))
	} else {
		st.Confidence = float64(len(st.readings)) / float64(sm.opts.RequiredReadings)
	}

	if st.Confidence >= sm.opts.MinConfidence {
		wasInside := st.Inside
		st.Inside = inside
		if !wasInside && inside && st.EnteredAt.IsZero() {
			st.EnteredAt = now
			st.ExitedAt = time.Time{}
		}
		if wasInside && !inside && st.ExitedAt.IsZero() {
			st.ExitedAt = now
		}
	}

	return *st
}

// State returns the current smoothed state for a geofence, if any.
func (sm *Smoother) State(geofenceID string) (FenceState, bool) {
	st, ok := sm.states[geofenceID]
	if !ok {
		return FenceState{}, false
	}
	return *st, true
}

// Reset drops accumulated state for one geofence.
func (sm *Smoother) Reset(geofenceID string) {
	delete(sm.states, geofenceID)
}

// ResetAll drops all accumulated state.
func (sm *Smoother) ResetAll() {
	clear(sm.states)
}
