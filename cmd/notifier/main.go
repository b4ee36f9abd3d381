// Package main is the entry point for the CineLog notifier daemon.
//
// The notifier owns notification generation for the platform: it runs the
// streaming-availability, watch-reminder, and director-release jobs on their
// wall-clock schedules, and serves a small ops HTTP surface (health, task
// status, manual triggers) alongside the scheduler.
//
// Startup wires the configuration, database pool, TMDB client, repositories,
// jobs, and runner, then runs the scheduler loop and the ops listener under
// one errgroup. Graceful shutdown is handled via OS signal interception
// (SIGINT, SIGTERM).
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

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"cinelog/internal/config"
	"cinelog/internal/db"
	"cinelog/internal/external"
	"cinelog/internal/ops"
	"cinelog/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("cinelog notifier starting",
		"environment", cfg.Environment,
		"ops_port", cfg.Server.Port,
		"watch_region", cfg.TMDB.WatchRegion,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// External metadata client.
	httpClient := &http.Client{Timeout: cfg.TMDB.Timeout}
	tmdbClient := external.NewTMDBClient(httpClient, external.TMDBClientConfig{
		APIKey:  cfg.TMDB.APIKey.Unmask(),
		BaseURL: cfg.TMDB.BaseURL,
		Logger:  logger,
	})

	// Repositories.
	userRepo := db.NewUserRepository(pool)
	movieRepo := db.NewMovieRepository(pool)
	notifRepo := db.NewNotificationRepository(pool, nil)
	lockRepo := db.NewJobLockRepository(pool, nil)
	historyRepo := db.NewJobHistoryRepository(pool)

	// Jobs.
	streamingJob := scheduler.NewStreamingJob(scheduler.StreamingJobConfig{
		Movies:        movieRepo,
		Notifications: notifRepo,
		Metadata:      tmdbClient,
		Region:        cfg.TMDB.WatchRegion,
		DedupWindow:   cfg.Jobs.StreamingDedupWindow,
		Logger:        logger,
	})
	reminderJob := scheduler.NewReminderJob(scheduler.ReminderJobConfig{
		Users:         userRepo,
		Movies:        movieRepo,
		Notifications: notifRepo,
		MinWait:       cfg.Jobs.ReminderMinWait,
		BatchSize:     cfg.Jobs.ReminderBatchSize,
		Logger:        logger,
	})
	directorJob := scheduler.NewDirectorJob(scheduler.DirectorJobConfig{
		Users:         userRepo,
		Movies:        movieRepo,
		Notifications: notifRepo,
		Metadata:      tmdbClient,
		MinRating:     cfg.Jobs.DirectorMinRating,
		Logger:        logger,
	})

	// Runner.
	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Locks:   lockRepo,
		History: historyRepo,
		LockTTL: cfg.Jobs.RunLockTTL,
		Logger:  logger,
	})
	runner.Register(scheduler.TaskStreamingAvailability,
		scheduler.DailySchedule{Hour: cfg.Jobs.StreamingHour}, streamingJob.Run)
	runner.Register(scheduler.TaskWatchReminder,
		scheduler.DailySchedule{Hour: cfg.Jobs.ReminderHour}, reminderJob.Run)
	runner.Register(scheduler.TaskDirectorRelease,
		scheduler.WeeklySchedule{Weekday: time.Weekday(cfg.Jobs.DirectorWeekday), Hour: cfg.Jobs.DirectorHour}, directorJob.Run)

	// Ops HTTP surface.
	opsServer := ops.NewServer(ops.ServerConfig{
		Runner: runner,
		DB:     pool,
		Logger: logger,
	})
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      opsServer.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := runner.Start(gctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return runner.Stop(stopCtx)
	})

	g.Go(func() error {
		logger.Info("ops server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down ops server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("cinelog notifier stopped")
	return err
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
