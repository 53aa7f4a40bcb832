package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/queuekit/queue-analytics/pkg/analytics"
	"github.com/queuekit/queue-analytics/pkg/app"
	"github.com/queuekit/queue-analytics/pkg/async"
	"github.com/queuekit/queue-analytics/pkg/config"
	"github.com/queuekit/queue-analytics/pkg/observability"
	"github.com/queuekit/queue-analytics/pkg/storage/s3"
)

var version = "dev"

var (
	runOnce      = flag.Bool("run-once", false, "Capture snapshots once and exit (for backfilling)")
	snapshotDate = flag.String("date", "", "Day to capture (YYYY-MM-DD). If empty, captures yesterday. Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue-analytics-snapshotter: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogrus(cfg.Observability.LogLevel)
	async.SetLogger(log)
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx := context.Background()
	cfg.Observability.OTelServiceVersion = version
	a, err := app.New(ctx, cfg, logger, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close(context.Background())

	var archive analytics.ReportArchive
	if cfg.Snapshotter.Archive {
		s3Archive, err := s3.NewArchive(ctx, cfg.Storage, a.Metrics)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize report archive")
		}
		a.Health.AddOptional("s3", s3Archive)
		archive = s3Archive
	}

	snapshotter := analytics.NewSnapshotter(a.Service, a.Store, archive, analytics.SnapshotterConfig{
		Workers:       cfg.Snapshotter.Workers,
		TaskTimeout:   cfg.Snapshotter.TaskTimeout,
		ArchiveFormat: cfg.Snapshotter.ArchiveFormat,
	}, log)

	// Run once mode (for testing or backfilling)
	if *runOnce {
		day := time.Now().In(a.Location).AddDate(0, 0, -1)
		if *snapshotDate != "" {
			day, err = time.ParseInLocation("2006-01-02", *snapshotDate, a.Location)
			if err != nil {
				log.WithError(err).Fatal("Invalid date format")
			}
		}
		if err := capture(ctx, snapshotter, day, log); err != nil {
			log.WithError(err).Fatal("Snapshot run failed")
		}
		return
	}

	c := cron.New(
		cron.WithLocation(a.Location),
		cron.WithLogger(cron.VerbosePrintfLogger(log)),
		cron.WithChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(log))),
	)

	// Daily capture of yesterday's queues
	_, err = c.AddFunc(cfg.Snapshotter.Schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in daily snapshot: %v", r)
			}
		}()
		yesterday := time.Now().In(a.Location).AddDate(0, 0, -1)
		if err := capture(context.Background(), snapshotter, yesterday, log); err != nil {
			log.WithError(err).Error("Daily snapshot failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule daily snapshot")
	}

	healthServer := a.HealthServer()
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Health server failed")
		}
	}()

	if cfg.Snapshotter.RunOnStart {
		go func() {
			if err := capture(ctx, snapshotter, time.Now().In(a.Location).AddDate(0, 0, -1), log); err != nil {
				log.WithError(err).Error("Startup snapshot failed")
			}
		}()
	}

	c.Start()
	log.WithFields(logrus.Fields{
		"schedule": cfg.Snapshotter.Schedule,
		"workers":  cfg.Snapshotter.Workers,
		"archive":  archive != nil,
		"timezone": a.Location.String(),
	}).Info("Queue analytics snapshotter started")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down gracefully...")

	// Stop the scheduler and wait for a running capture
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn("Timed out waiting for running snapshot")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Health server shutdown error")
	}
	log.Info("Snapshotter stopped")
}

func capture(ctx context.Context, snapshotter *analytics.Snapshotter, day time.Time, log *logrus.Logger) error {
	log.WithField("day", day.Format("2006-01-02")).Info("Starting daily snapshot")

	result, err := snapshotter.CaptureDaily(ctx, day)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d of %d shops failed: %w", len(result.Errors), result.Shops, errors.Join(result.Errors...))
	}
	return nil
}
