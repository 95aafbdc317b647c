package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is how often the connectivity monitor re-checks
// reachability.
const DefaultProbeInterval = 30 * time.Second

// Monitor derives an online/offline signal by polling a reachability probe
// (normally the remote client's Reachable). It satisfies Connectivity:
// transitions are emitted on Changes, the current state is readable at any
// time via Online.
type Monitor struct {
	probe    func(context.Context) bool
	interval time.Duration
	logger   *slog.Logger

	online  atomic.Bool
	changes chan bool
}

// NewMonitor creates a Monitor around the given probe. A non-positive
// interval selects the 30 second default. The monitor starts offline until
// the first probe says otherwise.
func NewMonitor(probe func(context.Context) bool, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   slog.Default(),
		changes:  make(chan bool, 1),
	}
}

// Online reports the last probed state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Changes delivers state transitions. The channel is buffered one deep;
// when the consumer lags, intermediate flaps collapse to the latest state.
func (m *Monitor) Changes() <-chan bool {
	return m.changes
}

// SetOnline forces the state, emitting a transition if it changed. Exists
// for tests and for platforms that push connectivity events instead of being
// polled.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	// Collapse a stale pending transition so the buffer holds the latest.
	select {
	case <-m.changes:
	default:
	}
	m.changes <- online
}

// Run polls the probe until ctx is cancelled. The first probe happens
// immediately so the engine learns the initial state without waiting a full
// interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		online := m.probe(ctx)
		if online != m.online.Load() {
			m.logger.Info("connectivity changed", "online", online)
		}
		m.SetOnline(online)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
