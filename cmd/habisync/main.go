package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habisync/internal/config"
	"habisync/internal/connectivity"
	"habisync/internal/constants"
	"habisync/internal/metrics"
	"habisync/internal/models"
	"habisync/internal/notify"
	"habisync/internal/queue"
	"habisync/internal/retry"
	"habisync/internal/snapshot"
	"habisync/internal/store"
	"habisync/internal/syncer"
	"habisync/internal/tracing"
	"habisync/pkg/padron"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("habisync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting habisync")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize the local store with exponential backoff retry
	var kv *store.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultStoreRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		kv, initErr = store.New(cfg.Store.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize store: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store after retries: %w", err)
	}
	defer kv.Close()

	queueManager := queue.NewManager(kv, logger)
	if err := queueManager.Load(ctx); err != nil {
		// Fail open: the queue starts empty and the condition is surfaced on
		// the next explicit user action.
		logger.WithError(err).Warn("Failed to load persisted inspection queue, starting empty")
	}
	metrics.SetGauge("queue_pending_records", float64(queueManager.PendingCount()), nil, "Records currently awaiting sync")

	padronClient := padron.NewClient(padron.ClientConfig{
		BaseURL: cfg.Padron.APIBaseURL,
		APIKey:  os.Getenv("PADRON_API_KEY"),
		Timeout: time.Duration(cfg.Padron.TimeoutSec) * time.Second,
	})

	hub := notify.NewHub()

	watcher := connectivity.NewWatcher(padronClient, logger,
		time.Duration(cfg.Connectivity.ProbeIntervalSec)*time.Second,
		time.Duration(cfg.Connectivity.ProbeTimeoutSec)*time.Second)
	watcher.Start(ctx)
	defer watcher.Stop()

	preparer := snapshot.NewPreparer(kv, padronClient, hub, logger)
	go autoPrepareOffline(ctx, watcher, preparer)

	orchestrator := syncer.NewOrchestrator(queueManager, padronClient, watcher, hub, logger)
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	go publishConnectivity(ctx, watcher, hub)

	server := NewServer(cfg, logger, queueManager, orchestrator, preparer, watcher, hub)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// autoPrepareOffline fires the one-shot automatic snapshot refresh the first
// time connectivity is confirmed after startup.
func autoPrepareOffline(ctx context.Context, watcher *connectivity.Watcher, preparer *snapshot.Preparer) {
	edges, unsubscribe := watcher.Subscribe()
	defer unsubscribe()

	if watcher.Status() == connectivity.StatusOnline {
		preparer.AutoRefresh(ctx)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-edges:
			if !ok {
				return
			}
			if status == connectivity.StatusOnline {
				preparer.AutoRefresh(ctx)
				return
			}
		}
	}
}

// publishConnectivity forwards connectivity edges to the UI event stream.
func publishConnectivity(ctx context.Context, watcher *connectivity.Watcher, hub *notify.Hub) {
	edges, unsubscribe := watcher.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-edges:
			if !ok {
				return
			}
			hub.Publish(notify.EventConnectivityChange, map[string]string{"status": status.String()})
		}
	}
}

func validateConfig(cfg *models.Config) error {
	if cfg.Padron.APIBaseURL == "" {
		return fmt.Errorf("padron API base URL is required")
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}
