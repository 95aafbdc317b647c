package geofence

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

func sampleAt(lat, lon float64) geo.PositionSample {
	return geo.PositionSample{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: 10,
		CapturedAt:     time.Now(),
	}
}

var testFence = Definition{
	ID:           "loc-1",
	MissionID:    "mission-1",
	Name:         "Old Mill Checkpoint",
	Latitude:     40.7128,
	Longitude:    -77.8547,
	RadiusMeters: 100,
	Kind:         KindCheckpoint,
}

func TestEvaluateAtCenterIsReached(t *testing.T) {
	e := NewEngine(0)

	res := e.Evaluate(sampleAt(40.7128, -77.8547), []Definition{testFence})
	if len(res.Reached) != 1 {
		t.Fatalf("got %d reached, want 1", len(res.Reached))
	}
	if res.Reached[0].ID != "loc-1" {
		t.Errorf("reached ID = %q, want loc-1", res.Reached[0].ID)
	}
	if len(res.Alerts) != 0 {
		t.Errorf("got %d alerts, want 0 once reached", len(res.Alerts))
	}
}

func TestReachedFiresOncePerSession(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	first := e.Evaluate(sampleAt(40.7128, -77.8547), defs)
	second := e.Evaluate(sampleAt(40.7128, -77.8547), defs)

	if len(first.Reached) != 1 {
		t.Fatalf("first pass: %d reached, want 1", len(first.Reached))
	}
	if len(second.Reached) != 0 {
		t.Errorf("second pass: %d reached, want 0 (already in reached set)", len(second.Reached))
	}
	if !e.HasReached("loc-1") {
		t.Error("HasReached(loc-1) = false after arrival")
	}
}

// Walking the sample linearly toward the center must classify
// far -> near -> reached, in order, never reversing.
func TestClassificationMonotonic(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	// ~300m, ~150m, ~50m north of center (0.0009° lat ≈ 100 m).
	steps := []struct {
		lat     float64
		reached bool
		alert   bool
	}{
		{40.7128 + 0.0027, false, false}, // far
		{40.7128 + 0.00135, false, true}, // near
		{40.7128 + 0.00045, true, false}, // inside radius
	}

	for i, step := range steps {
		res := e.Evaluate(sampleAt(step.lat, -77.8547), defs)
		if got := len(res.Reached) > 0; got != step.reached {
			t.Errorf("step %d: reached = %v, want %v", i, got, step.reached)
		}
		if got := len(res.Alerts) > 0; got != step.alert {
			t.Errorf("step %d: alert = %v, want %v", i, got, step.alert)
		}
	}
}

// N samples in the same 50 m distance bucket yield exactly one alert.
func TestAlertDeduplicationByBucket(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	alerts := 0
	for i := 0; i < 5; i++ {
		res := e.Evaluate(sampleAt(40.7128+0.00135, -77.8547), defs)
		alerts += len(res.Alerts)
	}
	if alerts != 1 {
		t.Errorf("got %d alerts for 5 same-bucket samples, want 1", alerts)
	}
}

func TestAlertRefiresAfterBucketClear(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	if res := e.Evaluate(sampleAt(40.7128+0.00135, -77.8547), defs); len(res.Alerts) != 1 {
		t.Fatalf("initial alert count = %d, want 1", len(res.Alerts))
	}

	e.ClearAlertBuckets()

	if res := e.Evaluate(sampleAt(40.7128+0.00135, -77.8547), defs); len(res.Alerts) != 1 {
		t.Errorf("post-clear alert count = %d, want 1 (re-approach should alert)", len(res.Alerts))
	}
}

func TestDifferentBucketsAlertSeparately(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	// ~190m then ~120m: distinct 50 m buckets while approaching.
	first := e.Evaluate(sampleAt(40.7128+0.0017, -77.8547), defs)
	second := e.Evaluate(sampleAt(40.7128+0.00108, -77.8547), defs)

	if len(first.Alerts) != 1 || len(second.Alerts) != 1 {
		t.Errorf("alert counts = %d, %d; want 1, 1", len(first.Alerts), len(second.Alerts))
	}
}

func TestNoAlertOnceReached(t *testing.T) {
	e := NewEngine(0)
	defs := []Definition{testFence}

	e.Evaluate(sampleAt(40.7128, -77.8547), defs)

	// Back just outside the radius but within the proximity threshold.
	res := e.Evaluate(sampleAt(40.7128+0.00135, -77.8547), defs)
	if len(res.Alerts) != 0 {
		t.Errorf("got %d alerts for an already-reached geofence, want 0", len(res.Alerts))
	}
}

func TestAlertMessagesByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindCheckpoint, "checkpoint"},
		{KindChallenge, "Challenge"},
		{KindReward, "Reward"},
		{KindClue, "Clue"},
	}
	for _, tt := range tests {
		d := testFence
		d.Kind = tt.kind
		msg := alertMessage(d, 150)
		if !strings.Contains(msg, tt.want) {
			t.Errorf("alertMessage(%s) = %q, want mention of %q", tt.kind, msg, tt.want)
		}
		if !strings.Contains(msg, "150m") {
			t.Errorf("alertMessage(%s) = %q, want distance 150m", tt.kind, msg)
		}
	}

	d := testFence
	msg := alertMessage(d, 1500)
	if !strings.Contains(msg, "1.5km") {
		t.Errorf("alertMessage at 1500m = %q, want 1.5km", msg)
	}
}

func TestEvaluateEmptyDefinitions(t *testing.T) {
	e := NewEngine(0)
	res := e.Evaluate(sampleAt(40.7128, -77.8547), nil)
	if len(res.Reached) != 0 || len(res.Alerts) != 0 {
		t.Error("evaluating against no definitions should produce nothing")
	}
}
