// Package locate acquires position samples from a positioning provider and
// hardens them for downstream use: accuracy validation with a retry budget,
// bounded timeouts, throttled watch delivery and a cached last-known
// fallback for when the sensor is unavailable.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// Classified sensor errors. Permission denial is terminal for the session
// until the user re-grants; the other two are retried before degrading to the
// cached position.
var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrUnavailable      = errors.New("position unavailable")
	ErrTimeout          = errors.New("position request timed out")
)

// Provider is the platform positioning collaborator: one blocking request for
// the current position. Implementations classify failures with the sentinel
// errors above.
type Provider interface {
	Current(ctx context.Context) (geo.PositionSample, error)
}

// SampleCache persists the single-slot last-known sample. Implemented by the
// durable store; a failing cache degrades silently (logged, never fatal).
type SampleCache interface {
	PutLastKnown(geo.PositionSample) error
	LastKnown(maxAge time.Duration) (geo.PositionSample, error)
}

// Options tune the robustness policy. Zero values select the defaults.
type Options struct {
	MinAccuracyMeters float64       // reject samples less accurate than this (default 100 m)
	RetryAttempts     int           // accuracy/error retry budget (default 3)
	RetryDelay        time.Duration // fixed delay between retries (default 2 s)
	RequestTimeout    time.Duration // per-request bound (default 15 s)
	WatchInterval     time.Duration // minimum spacing of watch callbacks (default 5 s)
	CacheMaxAge       time.Duration // how old a cached fallback may be (default 60 s)
}

func (o Options) withDefaults() Options {
	if o.MinAccuracyMeters <= 0 {
		o.MinAccuracyMeters = 100
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = 5 * time.Second
	}
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = time.Minute
	}
	return o
}

// Source wraps a Provider with the retry/throttle/fallback policy.
type Source struct {
	provider Provider
	cache    SampleCache
	opts     Options
	logger   *slog.Logger
}

// NewSource creates a Source. cache may be nil, in which case accepted
// samples are not persisted and there is no degraded fallback.
func NewSource(provider Provider, cache SampleCache, opts Options) *Source {
	return &Source{
		provider: provider,
		cache:    cache,
		opts:     opts.withDefaults(),
		logger:   slog.Default(),
	}
}

// Current returns one position sample. Samples failing the accuracy bar are
// re-requested after a fixed delay until the retry budget runs out, at which
// point the best sample seen is accepted anyway: availability beats strict
// accuracy. Sensor errors are retried the same way, then degrade to the
// cached last-known sample if one is young enough; only when that also fails
// does the classified error surface.
func (s *Source) Current(ctx context.Context) (geo.PositionSample, error) {
	var best geo.PositionSample
	var haveBest bool
	var lastErr error

	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.fallback(ctx.Err())
			case <-time.After(s.opts.RetryDelay):
			}
		}

		sample, err := s.request(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrPermissionDenied) {
				// No point retrying until the user re-grants.
				break
			}
			s.logger.Debug("position request failed", "attempt", attempt, "error", err)
			continue
		}

		if !haveBest || sample.AccuracyMeters < best.AccuracyMeters {
			best, haveBest = sample, true
		}
		if sample.AccuracyMeters <= s.opts.MinAccuracyMeters {
			return s.accept(sample)
		}
		s.logger.Debug("low-accuracy sample, retrying",
			"attempt", attempt, "accuracy_m", sample.AccuracyMeters)
	}

	if haveBest {
		// Retry budget exhausted: take the best we got.
		return s.accept(best)
	}
	return s.fallback(lastErr)
}

func (s *Source) request(ctx context.Context) (geo.PositionSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	sample, err := s.provider.Current(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return geo.PositionSample{}, ErrTimeout
		}
		return geo.PositionSample{}, err
	}
	return sample, nil
}

// accept records the sample in the last-known slot and hands it back.
func (s *Source) accept(sample geo.PositionSample) (geo.PositionSample, error) {
	if s.cache != nil {
		if err := s.cache.PutLastKnown(sample); err != nil {
			s.logger.Warn("caching last-known position failed", "error", err)
		}
	}
	return sample, nil
}

// fallback serves the cached last-known sample, if young enough, when the
// sensor cannot. The caller still learns the original failure class via the
// wrapped error when no cached sample exists.
func (s *Source) fallback(cause error) (geo.PositionSample, error) {
	if s.cache != nil {
		if sample, err := s.cache.LastKnown(s.opts.CacheMaxAge); err == nil {
			s.logger.Info("using cached position", "cause", cause)
			return sample, nil
		}
	}
	if cause == nil {
		cause = ErrUnavailable
	}
	return geo.PositionSample{}, fmt.Errorf("acquiring position: %w", cause)
}

// Watch requests positions on the configured interval and delivers at most
// one sample per interval to fn, even if the provider reports more often.
// It returns a cancel function that synchronously stops further callbacks
// and abandons any in-flight retry sleep. Errors after retries/fallback are
// delivered to errFn (which may be nil).
func (s *Source) Watch(ctx context.Context, fn func(geo.PositionSample), errFn func(error)) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	var mu sync.Mutex
	stopped := false

	go func() {
		ticker := time.NewTicker(s.opts.WatchInterval)
		defer ticker.Stop()

		for {
			sample, err := s.Current(ctx)

			mu.Lock()
			done := stopped || ctx.Err() != nil
			if !done {
				if err != nil {
					if errFn != nil {
						errFn(err)
					}
				} else {
					fn(sample)
				}
			}
			mu.Unlock()
			if done {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		stop()
	}
}
