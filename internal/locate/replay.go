package locate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// Replay plays back position samples from a JSON-lines fixture file, one
// sample per Current call. It exists for deterministic runs: demos, field
// trace re-processing and tests. With Loop set the file wraps around;
// otherwise exhausting it reports ErrUnavailable, mimicking signal loss.
type Replay struct {
	Loop bool

	mu      sync.Mutex
	samples []geo.PositionSample
	next    int
}

// NewReplay loads a fixture file of newline-delimited JSON position samples.
func NewReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay fixture: %w", err)
	}
	defer f.Close()

	var samples []geo.PositionSample
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var s geo.PositionSample
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("parsing replay fixture line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading replay fixture: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("replay fixture %s contains no samples", path)
	}

	return &Replay{samples: samples}, nil
}

// ReplayFrom builds a Replay directly from samples (used by tests).
func ReplayFrom(samples ...geo.PositionSample) *Replay {
	return &Replay{samples: samples}
}

// Current returns the next sample in the fixture.
func (r *Replay) Current(ctx context.Context) (geo.PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return geo.PositionSample{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.samples) {
		if !r.Loop {
			return geo.PositionSample{}, ErrUnavailable
		}
		r.next = 0
	}
	s := r.samples[r.next]
	r.next++
	return s, nil
}
