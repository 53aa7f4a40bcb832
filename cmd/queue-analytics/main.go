package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/queuekit/queue-analytics/pkg/api"
	"github.com/queuekit/queue-analytics/pkg/app"
	"github.com/queuekit/queue-analytics/pkg/config"
	"github.com/queuekit/queue-analytics/pkg/observability"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "queue-analytics: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logrusLogger := app.NewLogrus(cfg.Observability.LogLevel)

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	cfg.Observability.OTelServiceVersion = version
	a, err := app.New(ctx, cfg, logger, logrusLogger)
	if err != nil {
		_ = providers.Shutdown(ctx)
		return err
	}

	if providers != nil {
		instruments, err := observability.NewOTelInstruments()
		if err != nil {
			return fmt.Errorf("failed to create OTel instruments: %w", err)
		}
		a.Metrics.AttachOTel(instruments)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiServer := api.NewServer(a.Service, api.ServerOptions{
		Logger:      logger,
		Metrics:     a.Metrics,
		Location:    a.Location,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimiter: a.RateLimiter(serveCtx),
		ServiceName: cfg.Observability.OTelServiceName,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := a.HealthServer()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("storage", a.Close)
	shutdown.Register("otel", providers.Shutdown)

	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name)
		logger.WithFields(map[string]interface{}{"server": name, "addr": srv.Addr}).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).WithField("server", name).Error("Server failed")
		}
	}
	go serve("health", healthServer)
	go func() {
		serve("api", server)
		cancel()
	}()

	logger.WithFields(map[string]interface{}{
		"version":       version,
		"cache_backend": cfg.Storage.CacheBackend,
		"key_strategy":  cfg.Storage.CacheKeyStrategy,
		"timezone":      a.Location.String(),
	}).Info("Queue analytics API started")

	return shutdown.WaitForShutdown(serveCtx)
}
