package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/calsync-agent/internal/config"
	"github.com/p-blackswan/calsync-agent/internal/engine"
	"github.com/p-blackswan/calsync-agent/internal/gcal"
	"github.com/p-blackswan/calsync-agent/internal/health"
	"github.com/p-blackswan/calsync-agent/internal/linear"
	"github.com/p-blackswan/calsync-agent/internal/metrics"
	"github.com/p-blackswan/calsync-agent/pkg/tokenstore"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config — missing tracker key or calendar credentials is fatal
	// here, before any item is touched.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("calendar_id", cfg.CalendarID).
		Int("window_days", cfg.SearchWindowDays).
		Int("workers", cfg.Workers).
		Bool("scheduled", cfg.ScheduleEnabled()).
		Msg("starting calsync agent")

	// Calendar store: service account credentials, cached token source,
	// REST client.
	account, err := gcal.LoadServiceAccount(cfg.GoogleCredentialsPath, cfg.GoogleCredentialsJSON)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load Google credentials")
	}
	tokens, err := gcal.NewTokenSource(account, tokenstore.NewMemoryStore(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token source")
	}
	store := gcal.NewClient(tokens, logger)

	// Source feed
	linearClient := linear.NewClient(cfg.LinearAPIURL, cfg.LinearAPIKey, logger)
	feed := linear.NewFeed(linearClient, cfg.LinearIssueLimit, cfg.LinearProjectLimit)

	m := metrics.New()
	eng := engine.NewEngine(store, engine.Config{
		CalendarID: cfg.CalendarID,
		Timezone:   cfg.Timezone,
		WindowDays: cfg.SearchWindowDays,
		Workers:    cfg.Workers,
	}, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runOnce := func() {
		items, err := feed.ListItems(ctx)
		if err != nil {
			// Source unreachable: nothing to sync this run, not fatal.
			logger.Warn().Err(err).Msg("source fetch failed, no items this run")
			items = nil
		}
		summary := eng.Run(ctx, items)
		for _, r := range summary.Results {
			if r.Outcome != engine.OutcomeSynced {
				logger.Info().
					Str("item_id", r.ItemID).
					Str("kind", string(r.Kind)).
					Str("outcome", string(r.Outcome)).
					Str("reason", r.Reason).
					Msg("item not synced")
			}
		}
	}

	if !cfg.ScheduleEnabled() {
		runOnce()
		return
	}

	// Schedule mode: cron-driven runs plus an ops HTTP surface.
	checker := health.NewChecker(logger)
	checker.Register("linear", func(ctx context.Context) health.Status {
		if err := linearClient.Ping(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("gcal", func(ctx context.Context) health.Status {
		if _, err := tokens.Token(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Msg("ops HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops HTTP server error")
		}
	}()

	// Overlapping runs are skipped rather than queued: a run touching the
	// same source_ids as its predecessor would race it.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.Schedule, runOnce); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Schedule).Msg("invalid sync schedule")
	}
	scheduler.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	cronCtx := scheduler.Stop() // waits for a running job via its context
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops HTTP server shutdown error")
	}

	select {
	case <-cronCtx.Done():
		logger.Info().Msg("scheduler drained")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("calsync agent stopped")
}
