package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldquest/fieldtrack/internal/config"
	"github.com/fieldquest/fieldtrack/internal/geofence"
	"github.com/fieldquest/fieldtrack/internal/httpapi"
	"github.com/fieldquest/fieldtrack/internal/locate"
	"github.com/fieldquest/fieldtrack/internal/remote"
	"github.com/fieldquest/fieldtrack/internal/storage"
	"github.com/fieldquest/fieldtrack/internal/syncer"
	"github.com/fieldquest/fieldtrack/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tracking runtime (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession()
	},
}

func runSession() error {
	fmt.Fprintf(os.Stderr, "fieldtrack version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if len(cfg.Missions) == 0 {
		printWarning("no missions configured (FIELDTRACK_MISSIONS); nothing to track")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Retention purge runs off the foreground path.
	go func() {
		if n, err := store.PurgeOlderThan(cfg.GeofenceRetention, cfg.VisitRetention); err != nil {
			slog.Warn("retention purge failed", "error", err)
		} else if n > 0 {
			slog.Info("retention purge", "removed", n)
		}
	}()

	// Positioning provider: replay fixture when configured, gpsd otherwise.
	var provider locate.Provider
	if cfg.ReplayFile != "" {
		replay, err := locate.NewReplay(cfg.ReplayFile)
		if err != nil {
			return err
		}
		provider = replay
		printStep("replaying positions from %s", cfg.ReplayFile)
	} else {
		gpsd := locate.NewGPSD(cfg.GPSDAddr)
		defer gpsd.Close()
		provider = gpsd
	}

	source := locate.NewSource(provider, store, locate.Options{
		MinAccuracyMeters: cfg.MinAccuracyMeters,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
		RequestTimeout:    cfg.RequestTimeout,
		WatchInterval:     cfg.WatchInterval,
		CacheMaxAge:       cfg.PositionCacheAge,
	})

	client := remote.New(cfg.APIBaseURL, cfg.APIToken)

	session := tracker.NewSession(source, store, client, tracker.Options{
		Missions:           cfg.Missions,
		ProximityThreshold: cfg.ProximityThreshold,
		WatchInterval:      cfg.WatchInterval,
	})
	engine := syncer.New(store, client, cfg.SyncInterval)
	monitor := syncer.NewMonitor(client.Reachable, cfg.ProbeInterval)

	// Surface events on the console; the HTTP API serves richer state.
	session.SubscribeAlerts(func(a geofence.Alert) {
		printStep("%s", a.Message)
	})
	session.SubscribeReached(func(ev tracker.ReachedEvent) {
		printSuccess("reached %s (%s)", ev.Geofence.Name, ev.Geofence.Kind)
	})
	session.SubscribeErrors(func(err error) {
		printWarning("%v", err)
	})
	engine.Subscribe(func(res syncer.SyncResult) {
		if res.Failed > 0 {
			printWarning("sync: %d sent, %d still pending", res.Synced, res.Failed)
		} else if res.Synced > 0 {
			printSuccess("sync: %d visit(s) confirmed", res.Synced)
		}
	})

	// Refresh geofence definitions before tracking starts; failures fall
	// back to the cache so an offline start still works.
	if err := session.RefreshLocations(ctx); err != nil {
		return err
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Store:   store,
		Syncer:  engine,
		Session: session,
		Conn:    monitor,
	})
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return session.Run(gCtx)
	})
	g.Go(func() error {
		monitor.Run(gCtx)
		return nil
	})
	g.Go(func() error {
		engine.Run(gCtx, monitor)
		return nil
	})
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "fieldtrack status API on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}
