package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"engagement-service/internal/automation"
	"engagement-service/internal/broadcast"
	"engagement-service/internal/config"
	"engagement-service/internal/consumer"
	"engagement-service/internal/database"
	"engagement-service/internal/ingest"
	"engagement-service/internal/leaderboard"
	"engagement-service/internal/logger"
	"engagement-service/internal/repository"
	"engagement-service/internal/server"
	"engagement-service/internal/settings"
	"engagement-service/internal/spin"
	"engagement-service/internal/tracker"
	"engagement-service/internal/xp"
)

const closeTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.Engine.TimeZone)
	if err != nil {
		log.WithError(err).WithField("time_zone", cfg.Engine.TimeZone).Warn("unknown time zone, using local time")
		loc = time.Local
	}

	// Initialize database
	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Initialize repositories
	profileRepo := repository.NewProfileRepository(db.DB, log)
	eventRepo := repository.NewEventRepository(db.DB, log)
	gifterRepo := repository.NewGifterRepository(db.DB, log)
	settingsRepo := repository.NewSettingsRepository(db.DB, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := settings.NewManager(settingsRepo, log)
	if err := manager.Load(ctx); err != nil {
		log.WithError(err).Warn("failed to load settings, using defaults")
	}

	hub := broadcast.NewHub(log)
	defer hub.Close()

	var sink automation.Sink = automation.Nop{}
	if cfg.Rabbit.Enabled {
		publisher, err := automation.NewPublisher(cfg.Rabbit, log)
		if err != nil {
			log.WithError(err).Warn("automation publisher unavailable, milestone events disabled")
		} else {
			defer publisher.Close()
			sink = publisher
		}
	}

	board := leaderboard.New(gifterRepo, hub, sink, leaderboard.Options{
		Size:       cfg.Engine.LeaderboardSize,
		FlushDelay: cfg.Engine.FlushDelay,
		Throttle:   cfg.Engine.SnapshotThrottle,
	}, log)
	if err := board.Warm(ctx, cfg.Engine.WarmupBatchSize); err != nil {
		log.WithError(err).Error("failed to load all-time leaderboard")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := board.Close(closeCtx); err != nil {
			log.WithError(err).Error("failed to flush leaderboard on shutdown")
		}
	}()

	trackers := tracker.New()
	engine := xp.New(profileRepo, manager, trackers, board, hub, sink, xp.Options{Location: loc}, log)
	spinner := spin.New(profileRepo, manager, hub, spin.Options{}, log)
	dispatcher := ingest.NewDispatcher(engine, spinner, eventRepo, log)

	var wg sync.WaitGroup

	// Start tracker sweeper goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.RunSweeper(ctx, trackers, cfg.Engine.SweepInterval, func() time.Duration {
			return time.Duration(manager.Current().LargestWindow()) * time.Second
		}, log)
	}()

	// Start HTTP server goroutine
	srv := server.New(cfg.HTTP, server.Deps{
		WS:       hub.ServeWS,
		Board:    board,
		Viewers:  engine,
		History:  eventRepo,
		Settings: manager,
	}, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			log.WithError(err).Error("http server stopped unexpectedly")
			stop()
		}
	}()

	// Initialize and start RabbitMQ consumer
	if cfg.Rabbit.Enabled {
		rmqConsumer, err := consumer.New(cfg.Rabbit, log, dispatcher)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize RabbitMQ consumer")
		}
		defer rmqConsumer.Close()

		if err := rmqConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("consumer stopped unexpectedly")
			stop()
		}
	} else {
		log.Info("RabbitMQ disabled, serving HTTP only")
		<-ctx.Done()
	}

	wg.Wait()
	log.Info("graceful shutdown complete")
}
