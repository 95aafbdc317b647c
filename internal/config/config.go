// Package config loads runtime configuration from the environment. Every
// tunable has a field-tag default matching the behavior the runtime ships
// with; deployments override via FIELDTRACK_* variables or a .env file.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DataDir  string     `env:"DATA_DIR" envDefault:"data"`
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:"127.0.0.1:4600"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Remote mission API.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:3000/api"`
	APIToken   string `env:"API_TOKEN"`

	// Missions whose geofences the session tracks.
	Missions []string `env:"MISSIONS" envSeparator:","`

	// Positioning provider: gpsd by default, replay fixture when set.
	GPSDAddr   string `env:"GPSD_ADDR" envDefault:"localhost:2947"`
	ReplayFile string `env:"REPLAY_FILE"`

	// Geolocation robustness policy.
	MinAccuracyMeters  float64       `env:"MIN_ACCURACY_M" envDefault:"100"`
	RetryAttempts      int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay         time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	WatchInterval      time.Duration `env:"WATCH_INTERVAL" envDefault:"5s"`
	PositionCacheAge   time.Duration `env:"POSITION_CACHE_AGE" envDefault:"60s"`
	ProximityThreshold float64       `env:"PROXIMITY_THRESHOLD_M" envDefault:"200"`

	// Sync cadence. The periodic interval doubles as the retry backoff for
	// failed records, so it is configurable rather than hard-coded.
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"30s"`

	// Retention windows for the opportunistic purge.
	GeofenceRetention time.Duration `env:"GEOFENCE_RETENTION" envDefault:"168h"`
	VisitRetention    time.Duration `env:"VISIT_RETENTION" envDefault:"720h"`
}

// Load parses configuration from FIELDTRACK_-prefixed environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "FIELDTRACK_"})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
