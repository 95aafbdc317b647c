package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldquest/fieldtrack/internal/config"
	"github.com/fieldquest/fieldtrack/internal/remote"
	"github.com/fieldquest/fieldtrack/internal/storage"
	"github.com/fieldquest/fieldtrack/internal/syncer"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the mission API",
	Long: `Run one sync pass, draining queued visit records against the mission API.

Talks to a running fieldtrack instance when one is up; otherwise opens the
store directly and syncs from this process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		missionID, _ := cmd.Flags().GetString("mission")

		// Prefer the running instance so we never race its in-flight pass.
		if client, err := newAPIClient(); err == nil {
			var result syncer.SyncResult
			path := "/v1/sync"
			if missionID != "" {
				path += "?mission=" + missionID
			}
			if err := client.do(cmd.Context(), http.MethodPost, path, &result); err == nil {
				reportSync(result)
				return nil
			}
		}

		return syncDirect(cmd.Context(), missionID)
	},
}

func syncDirect(ctx context.Context, missionID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	client := remote.New(cfg.APIBaseURL, cfg.APIToken)
	engine := syncer.New(store, client, cfg.SyncInterval)
	reportSync(engine.SyncAll(ctx, missionID))
	return nil
}

func reportSync(result syncer.SyncResult) {
	if result.Skipped {
		printWarning("a sync pass was already in flight; nothing done")
		return
	}
	printStatus("synced", "%d", result.Synced)
	printStatus("failed", "%d", result.Failed)
	for _, e := range result.Errors {
		printError("visit %s (%s): %s", e.Record.ID, e.Record.GeofenceID, e.Cause)
	}
	if result.Success {
		printSuccess("queue drained")
	}
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show runtime status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var status struct {
			Online       bool `json:"online"`
			Pending      int  `json:"pending"`
			SyncInFlight bool `json:"syncInFlight"`
			Reached      int  `json:"reached"`
			LastPosition *struct {
				Latitude   float64   `json:"latitude"`
				Longitude  float64   `json:"longitude"`
				Accuracy   float64   `json:"accuracy_m"`
				CapturedAt time.Time `json:"captured_at"`
			} `json:"lastPosition"`
		}
		if err := client.do(cmd.Context(), http.MethodGet, "/v1/status", &status); err != nil {
			return err
		}

		if status.Online {
			printSuccess("online")
		} else {
			printWarning("offline, visits are queueing locally")
		}
		printStatus("pending visits", "%d", status.Pending)
		printStatus("reached this session", "%d", status.Reached)
		if status.SyncInFlight {
			printStep("sync pass in flight")
		}
		if p := status.LastPosition; p != nil {
			printStatus("position", "%.5f, %.5f (±%.0fm at %s)",
				p.Latitude, p.Longitude, p.Accuracy, p.CapturedAt.Local().Format(time.Kitchen))
		}
		return nil
	},
}

// --- locations ---

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Refresh and list cached geofences for a mission",
	RunE: func(cmd *cobra.Command, args []string) error {
		missionID, _ := cmd.Flags().GetString("mission")
		if missionID == "" {
			return fmt.Errorf("--mission is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		client := remote.New(cfg.APIBaseURL, cfg.APIToken)
		if defs, err := client.Locations(cmd.Context(), missionID); err != nil {
			printWarning("fetch failed (%v), showing cached set", err)
		} else if err := store.CacheGeofences(missionID, defs); err != nil {
			return err
		}

		defs, err := store.Geofences(missionID)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			printWarning("no geofences cached for mission %s", missionID)
			return nil
		}
		for _, d := range defs {
			fmt.Fprintf(os.Stdout, "%-24s %-10s %9.5f,%10.5f  r=%.0fm\n",
				d.Name, d.Kind, d.Latitude, d.Longitude, d.RadiusMeters)
		}
		return nil
	},
}

// --- purge ---

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired geofence cache rows and old visit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		n, err := store.PurgeOlderThan(cfg.GeofenceRetention, cfg.VisitRetention)
		if err != nil {
			return err
		}
		printSuccess("purged %d row(s)", n)
		return nil
	},
}

func init() {
	syncCmd.Flags().String("mission", "", "limit the pass to one mission")
	locationsCmd.Flags().String("mission", "", "mission to refresh")
}
