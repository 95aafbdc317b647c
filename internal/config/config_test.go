package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.HTTPAddr != "127.0.0.1:4600" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.APIBaseURL != "http://localhost:3000/api" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.MinAccuracyMeters != 100 {
		t.Errorf("MinAccuracyMeters = %v, want 100", cfg.MinAccuracyMeters)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.ProximityThreshold != 200 {
		t.Errorf("ProximityThreshold = %v, want 200", cfg.ProximityThreshold)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if cfg.GeofenceRetention != 7*24*time.Hour {
		t.Errorf("GeofenceRetention = %v, want 168h", cfg.GeofenceRetention)
	}
	if cfg.VisitRetention != 30*24*time.Hour {
		t.Errorf("VisitRetention = %v, want 720h", cfg.VisitRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIELDTRACK_DATA_DIR", "/var/lib/fieldtrack")
	t.Setenv("FIELDTRACK_LOG_LEVEL", "DEBUG")
	t.Setenv("FIELDTRACK_MISSIONS", "mission-1,mission-2")
	t.Setenv("FIELDTRACK_SYNC_INTERVAL", "90s")
	t.Setenv("FIELDTRACK_REPLAY_FILE", "trace.jsonl")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataDir != "/var/lib/fieldtrack" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if len(cfg.Missions) != 2 || cfg.Missions[0] != "mission-1" || cfg.Missions[1] != "mission-2" {
		t.Errorf("Missions = %v", cfg.Missions)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("SyncInterval = %v, want 90s", cfg.SyncInterval)
	}
	if cfg.ReplayFile != "trace.jsonl" {
		t.Errorf("ReplayFile = %q", cfg.ReplayFile)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("FIELDTRACK_SYNC_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed duration")
	}
}
