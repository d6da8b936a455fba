package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/config"
	"yamichi77/movement-log-agent/internal/database"
	"yamichi77/movement-log-agent/internal/device"
	"yamichi77/movement-log-agent/internal/gateway"
	"yamichi77/movement-log-agent/internal/logger"
	"yamichi77/movement-log-agent/internal/models"
	"yamichi77/movement-log-agent/internal/position"
	"yamichi77/movement-log-agent/internal/sampling"
	"yamichi77/movement-log-agent/internal/scheduler"
	"yamichi77/movement-log-agent/internal/session"
	"yamichi77/movement-log-agent/internal/store"
	syncpipe "yamichi77/movement-log-agent/internal/sync"
	"yamichi77/movement-log-agent/internal/tray"

	"go.uber.org/zap"
)

// keepAliveRetryInterval re-runs a transiently failed keep-alive pass
// well before the next regular slot.
const keepAliveRetryInterval = 15 * time.Minute

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting movement log agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	// Initialize database
	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	sampleStore := store.NewSampleStore(db.DB, log.Logger)
	settingsStore := store.NewSettingsStore(db.DB, log.Logger)
	statusStore := store.NewSessionStatusStore(db.DB, log.Logger)

	// Resolve device ID and tag all further log output with it
	deviceID, err := device.ResolveID(ctx, settingsStore)
	if err != nil {
		log.Fatal("Failed to resolve device ID", zap.Error(err))
	}
	zlog := log.Logger.With(zap.String("device_id", deviceID))

	// Seed durable settings from config on first run
	if err := settingsStore.SeedConnection(ctx, models.ConnectionSettings{
		BaseURL:    cfg.Backend.BaseURL,
		UploadPath: cfg.Backend.UploadPath,
	}); err != nil {
		log.Fatal("Failed to seed connection settings", zap.Error(err))
	}
	if err := settingsStore.SeedFrequency(ctx, models.TrackingFrequencySettings{
		WalkingSec: cfg.Tracking.WalkingSec,
		RunningSec: cfg.Tracking.RunningSec,
		BicycleSec: cfg.Tracking.BicycleSec,
		VehicleSec: cfg.Tracking.VehicleSec,
		StillSec:   cfg.Tracking.StillSec,
	}); err != nil {
		log.Fatal("Failed to seed frequency settings", zap.Error(err))
	}

	// HTTP clients share the persistent cookie jar; session-affinity
	// cookies from the backend survive restarts.
	jar := authapi.NewPersistentCookieJar(db.DB, zlog)
	timeout := time.Duration(cfg.Backend.Timeout) * time.Second
	authClient := authapi.NewClient(jar, timeout, zlog)
	gatewayClient := gateway.NewClient(jar, timeout, zlog)

	// Session layer
	sessionStore := session.NewStore()
	events := session.NewEventBus(zlog)
	reauthMarker := filepath.Join(filepath.Dir(cfg.StoragePath), "reauth-required")
	notifier := session.NewLogReauthNotifier(reauthMarker, zlog)
	manager := session.NewManager(authClient, sessionStore, statusStore, events, jar,
		cfg.Session.InvalidRetries, zlog)

	if token := os.Getenv("MOVEMENT_LOG_ACCESS_TOKEN"); token != "" {
		manager.SetAccessToken(token)
	}

	go watchLoginEvents(events, zlog)

	// Position pipeline
	feed, err := buildPositionFeed(cfg, zlog)
	if err != nil {
		log.Fatal("Failed to initialize position feed", zap.Error(err))
	}
	classifier := position.NewSpeedClassifier(feed, zlog)

	frequency, err := settingsStore.Frequency(ctx)
	if err != nil {
		log.Fatal("Failed to read frequency settings", zap.Error(err))
	}

	snapshots := sampling.NewSnapshotStore()
	controller := sampling.NewController(feed, classifier, sampleStore, snapshots,
		frequency, cfg.Tracking.DebugGPS, zlog)

	// Background jobs
	pipeline := syncpipe.NewPipeline(settingsStore, sampleStore, gatewayClient, manager, zlog)
	keepAlive := syncpipe.NewKeepAliveJob(settingsStore, statusStore, manager, notifier, zlog)

	syncScheduler := scheduler.New("sync",
		time.Duration(cfg.Sync.IntervalSec)*time.Second,
		time.Duration(cfg.Sync.RetryIntervalSec)*time.Second,
		func(ctx context.Context) scheduler.Outcome {
			return toOutcome(pipeline.Sync(ctx, cfg.Sync.BatchLimit))
		}, zlog)
	keepAliveScheduler := scheduler.New("keep-alive",
		time.Duration(cfg.KeepAlive.IntervalHours)*time.Hour,
		keepAliveRetryInterval,
		func(ctx context.Context) scheduler.Outcome {
			return toOutcome(keepAlive.Run(ctx))
		}, zlog)

	connectivity := syncpipe.NewConnectivity(gatewayClient, manager, settingsStore,
		statusStore, events, func() { keepAliveScheduler.Start(ctx) }, zlog)

	start := func() {
		// Best-effort connectivity probe; the sync loop handles a dead
		// backend on its own schedule.
		if settings, err := settingsStore.Connection(ctx); err == nil && settings.BaseURL != "" {
			probeCtx, probeCancel := context.WithTimeout(ctx, timeout)
			if _, err := connectivity.Test(probeCtx, settings); err != nil {
				zlog.Warn("Connectivity test failed", zap.Error(err))
			}
			probeCancel()
		}

		if err := controller.Start(true); err != nil {
			zlog.Error("Failed to start tracking", zap.Error(err))
		}
		syncScheduler.Start(ctx)
		keepAliveScheduler.Start(ctx)
	}

	stop := func() {
		controller.Stop()
		syncScheduler.Stop()
		keepAliveScheduler.Stop()
		cancel()
	}

	if cfg.Tray.Enabled {
		runWithTray(controller, snapshots, settingsStore, syncScheduler, start, stop, zlog)
		return
	}

	start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	zlog.Info("Received shutdown signal", zap.String("signal", sig.String()))
	stop()
	zlog.Info("Movement log agent stopped")
}

// runWithTray hands the main goroutine to the tray loop; the agent starts
// from OnReady and stops when the tray exits or a signal arrives.
func runWithTray(
	controller *sampling.Controller,
	snapshots *sampling.SnapshotStore,
	settingsStore *store.SettingsStore,
	syncScheduler *scheduler.Scheduler,
	start, stop func(),
	zlog *zap.Logger,
) {
	app := tray.NewApp(controller, snapshots, settingsStore, func() {
		syncScheduler.RunNow(context.Background())
	}, zlog)
	app.OnReady = start
	app.OnQuit = func() {
		stop()
		zlog.Info("Movement log agent stopped")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		zlog.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.Quit()
	}()

	app.Run()
}

func buildPositionFeed(cfg *config.Config, zlog *zap.Logger) (position.Feed, error) {
	switch cfg.Position.Source {
	case "gpsd", "":
		return position.NewGpsdFeed(cfg.Position.GpsdAddr, zlog), nil
	case "serial":
		return position.NewSerialFeed(cfg.Position.SerialDevice, cfg.Position.SerialBaud, zlog), nil
	default:
		return nil, fmt.Errorf("unknown position source %q", cfg.Position.Source)
	}
}

func toOutcome(result syncpipe.Result) scheduler.Outcome {
	switch result.Kind {
	case syncpipe.ResultRetry:
		return scheduler.Retry
	case syncpipe.ResultFailure:
		return scheduler.Failure
	default:
		return scheduler.Success
	}
}

// watchLoginEvents surfaces reauthentication demands in the log until an
// interactive front end exists to consume them.
func watchLoginEvents(events *session.EventBus, zlog *zap.Logger) {
	ch, cancel := events.Subscribe()
	defer cancel()
	for event := range ch {
		zlog.Warn("Interactive login required",
			zap.String("reason", string(event.Reason)),
			zap.String("base_url", event.BaseURL),
		)
	}
}
