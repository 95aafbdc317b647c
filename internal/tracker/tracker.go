// Package tracker runs the foreground session: it drives the geolocation
// watch loop, feeds samples through the proximity engine, persists visit
// records and fans events out to subscribers.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fieldquest/fieldtrack/internal/geo"
	"github.com/fieldquest/fieldtrack/internal/geofence"
	"github.com/fieldquest/fieldtrack/internal/storage"
)

// DefaultAction is recorded when a reached geofence does not require a
// specific action.
const DefaultAction = "check_in"

// PositionWatcher is the geolocation source boundary.
type PositionWatcher interface {
	Watch(ctx context.Context, fn func(geo.PositionSample), errFn func(error)) (cancel func())
}

// Store is the slice of the durable store the session needs.
type Store interface {
	Geofences(missionID string) ([]geofence.Definition, error)
	CacheGeofences(missionID string, defs []geofence.Definition) error
	EnqueueVisit(storage.VisitRecord) error
}

// LocationFetcher fetches fresh geofence definition sets from the remote API.
type LocationFetcher interface {
	Locations(ctx context.Context, missionID string) ([]geofence.Definition, error)
}

// ReachedEvent pairs the geofence that fired with the visit record that was
// (or failed to be) enqueued for it.
type ReachedEvent struct {
	Geofence geofence.Definition
	Visit    storage.VisitRecord
}

// Options tune the session.
type Options struct {
	Missions           []string
	ProximityThreshold float64       // meters; 0 selects the 200 m default
	WatchInterval      time.Duration // alert-bucket clear cadence; 0 selects 5 s
}

// Session owns one foreground tracking run. The proximity engine's reached
// set lives and dies with the session; it is never shared across sessions.
type Session struct {
	source   PositionWatcher
	store    Store
	fetcher  LocationFetcher
	engine   *geofence.Engine
	smoother *geofence.Smoother
	opts     Options
	logger   *slog.Logger

	samples chan geo.PositionSample

	mu        sync.Mutex
	defs      []geofence.Definition
	lastSeen  *geo.PositionSample
	onReached map[int]func(ReachedEvent)
	onAlert   map[int]func(geofence.Alert)
	onError   map[int]func(error)
	nextID    int
}

// NewSession creates a Session. fetcher may be nil for offline-only runs; the
// session then works entirely from cached definitions.
func NewSession(source PositionWatcher, store Store, fetcher LocationFetcher, opts Options) *Session {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 5 * time.Second
	}
	return &Session{
		source:   source,
		store:    store,
		fetcher:  fetcher,
		engine:   geofence.NewEngine(opts.ProximityThreshold),
		smoother: geofence.NewSmoother(geofence.SmootherOptions{}),
		opts:     opts,
		logger:   slog.Default(),
		// One pending sample; anything beyond coalesces to the latest.
		samples:   make(chan geo.PositionSample, 1),
		onReached: make(map[int]func(ReachedEvent)),
		onAlert:   make(map[int]func(geofence.Alert)),
		onError:   make(map[int]func(error)),
	}
}

// SubscribeReached registers a listener for arrival events.
func (s *Session) SubscribeReached(fn func(ReachedEvent)) (unsubscribe func()) {
	return subscribe(s, s.onReached, fn)
}

// SubscribeAlerts registers a listener for proximity alerts.
func (s *Session) SubscribeAlerts(fn func(geofence.Alert)) (unsubscribe func()) {
	return subscribe(s, s.onAlert, fn)
}

// SubscribeErrors registers a listener for degradations the session cannot
// resolve itself, most importantly visit-queue write failures.
func (s *Session) SubscribeErrors(fn func(error)) (unsubscribe func()) {
	return subscribe(s, s.onError, fn)
}

func subscribe[T any](s *Session, m map[int]func(T), fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	m[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(m, id)
	}
}

func emit[T any](s *Session, m map[int]func(T), v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// LastSample returns the most recent sample the session evaluated.
func (s *Session) LastSample() (geo.PositionSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeen == nil {
		return geo.PositionSample{}, false
	}
	return *s.lastSeen, true
}

// ReachedCount reports how many geofences fired this session.
func (s *Session) ReachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ReachedCount()
}

// FenceStates returns the smoothed inside/outside view of every tracked
// geofence that has accumulated readings. Unlike arrival events, which fire
// immediately, these states are debounced against GPS jitter; they exist for
// UI dwell indicators, not for visit recording.
func (s *Session) FenceStates() []geofence.FenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var states []geofence.FenceState
	for _, d := range s.defs {
		if st, ok := s.smoother.State(d.ID); ok {
			states = append(states, st)
		}
	}
	return states
}

// RefreshLocations pulls fresh definition sets for the given missions (all
// configured missions if none given) and upserts them into the cache. A
// fetch failure for a mission is logged and the cached set keeps serving;
// proximity detection never depends on the network.
func (s *Session) RefreshLocations(ctx context.Context, missionIDs ...string) error {
	if s.fetcher == nil {
		return s.loadDefinitions()
	}
	if len(missionIDs) == 0 {
		missionIDs = s.opts.Missions
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency on intermittent connections.
	for _, missionID := range missionIDs {
		missionID := missionID
		g.Go(func() error {
			defs, err := s.fetcher.Locations(gCtx, missionID)
			if err != nil {
				s.logger.Warn("fetching mission locations failed, serving cache",
					"mission_id", missionID, "error", err)
				return nil
			}
			if err := s.store.CacheGeofences(missionID, defs); err != nil {
				return fmt.Errorf("caching mission %s locations: %w", missionID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.loadDefinitions()
}

// loadDefinitions snapshots the cached definitions for all configured
// missions into memory. A read failure degrades to an empty set.
func (s *Session) loadDefinitions() error {
	var defs []geofence.Definition
	for _, missionID := range s.opts.Missions {
		d, err := s.store.Geofences(missionID)
		if err != nil {
			s.logger.Warn("reading geofence cache failed, degrading to empty",
				"mission_id", missionID, "error", err)
			continue
		}
		defs = append(defs, d...)
	}

	s.mu.Lock()
	s.defs = defs
	// Accumulated readings may describe superseded geometry; the smoothed
	// view rebuilds from the next samples. The reached set is untouched.
	s.smoother.ResetAll()
	s.mu.Unlock()
	return nil
}

// Run drives the session until ctx is cancelled. The watch callback never
// blocks on evaluation: a sample arriving mid-evaluation waits in a one-deep
// slot and further samples replace it, so the engine always sees the freshest
// backlog in order without unbounded queueing.
func (s *Session) Run(ctx context.Context) error {
	if err := s.loadDefinitions(); err != nil {
		return err
	}

	cancel := s.source.Watch(ctx, s.offer, func(err error) {
		emit(s, s.onError, err)
	})
	defer cancel()

	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Allow re-alerting when the user leaves and re-approaches.
			s.mu.Lock()
			s.engine.ClearAlertBuckets()
			s.mu.Unlock()
		case sample := <-s.samples:
			s.evaluate(sample)
		}
	}
}

// offer hands a sample to the evaluation loop, coalescing to the latest when
// the loop is backlogged.
func (s *Session) offer(sample geo.PositionSample) {
	for {
		select {
		case s.samples <- sample:
			return
		default:
		}
		select {
		case <-s.samples:
		default:
		}
	}
}

func (s *Session) evaluate(sample geo.PositionSample) {
	s.mu.Lock()
	s.lastSeen = &sample
	defs := s.defs
	res := s.engine.Evaluate(sample, defs)
	for _, d := range defs {
		s.smoother.Observe(d, sample)
	}
	s.mu.Unlock()

	for _, alert := range res.Alerts {
		emit(s, s.onAlert, alert)
	}

	for _, d := range res.Reached {
		visit := buildVisit(d, sample)
		if err := s.store.EnqueueVisit(visit); err != nil {
			// The one storage error that must not be swallowed: a dropped
			// visit write is silent data loss.
			s.logger.Error("enqueueing visit failed", "geofence_id", d.ID, "error", err)
			emit(s, s.onError, fmt.Errorf("recording visit to %s: %w", d.Name, err))
		}
		s.logger.Info("geofence reached", "geofence_id", d.ID, "name", d.Name, "kind", d.Kind)
		emit(s, s.onReached, ReachedEvent{Geofence: d, Visit: visit})
	}
}

func buildVisit(d geofence.Definition, sample geo.PositionSample) storage.VisitRecord {
	action := d.RequiredAction
	if action == "" {
		action = DefaultAction
	}
	capturedAt := sample.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	return storage.VisitRecord{
		ID:             uuid.New().String(),
		CapturedAt:     capturedAt,
		MissionID:      d.MissionID,
		GeofenceID:     d.ID,
		Latitude:       sample.Latitude,
		Longitude:      sample.Longitude,
		AccuracyMeters: sample.AccuracyMeters,
		Action:         action,
	}
}
