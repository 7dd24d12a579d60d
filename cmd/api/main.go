package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"skinbet/internal/cache"
	"skinbet/internal/config"
	"skinbet/internal/database"
	"skinbet/internal/eventloop"
	"skinbet/internal/game"
	"skinbet/internal/history"
	"skinbet/internal/jobs"
	"skinbet/internal/logging"
	"skinbet/internal/server"
	"skinbet/internal/wallet"
)

const (
	historyQueueSize = 1024
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisService cache.Service
	var store wallet.Store = wallet.NewMemory()
	if cfg.BalanceBackend == config.BalanceBackendRedis {
		redisService, err = cache.New(cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("[SERVER] Redis is required for the redis balance backend")
		}
		store = wallet.NewRedis(redisService.GetClient())
	}
	log.WithField("backend", cfg.BalanceBackend).Info("[SERVER] Wallet ready")

	var db database.Service
	var recorder history.Recorder = history.Nop{}
	var writer *history.Writer
	if cfg.HistoryEnabled {
		db, err = database.NewFromConfig(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("[SERVER] Failed to connect to history database")
		}
		if cfg.AutoMigrate {
			sqlDB := stdlib.OpenDBFromPool(db.Pool())
			if err := database.RunMigrations(sqlDB, cfg.MigrationsPath); err != nil {
				log.WithError(err).Fatal("[SERVER] Migration failed")
			}
			_ = sqlDB.Close()
		}
		writer = history.NewWriter(db.Pool(), historyQueueSize)
		writer.Start(context.Background())
		recorder = writer
	}

	loop := eventloop.New(eventloop.DefaultQueueSize)
	loop.Start()

	platform := game.NewPlatform(game.Options{
		Config:  cfg,
		Loop:    loop,
		Wallet:  store,
		History: recorder,
	})
	platform.Start()

	scheduler := jobs.NewScheduler(platform)
	if err := scheduler.Start(cfg.WatchdogSchedule, cfg.StatsSchedule); err != nil {
		log.WithError(err).Fatal("[SERVER] Invalid job schedule")
	}

	srv := server.New(server.Options{
		Platform: platform,
		DB:       db,
		Cache:    redisService,
	})
	srv.RegisterFiberRoutes()

	done := make(chan struct{})
	go gracefulShutdown(ctx, stop, srv, done, func() {
		scheduler.Stop()
		platform.Stop()
		loop.Stop()
		if writer != nil {
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			writer.Stop(drainCtx)
			cancel()
		}
		srv.Close()
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithFields(log.Fields{"addr": addr, "env": cfg.AppEnv}).Info("[SERVER] Listening")
	if err := srv.Listen(addr); err != nil {
		log.WithError(err).Fatal("[SERVER] Listener failed")
	}

	<-done
	log.Info("[SERVER] Graceful shutdown complete")
}

// gracefulShutdown waits for a signal, closes the listener and then runs
// stopGame, which must leave nothing writing to the backends.
func gracefulShutdown(ctx context.Context, stop context.CancelFunc, srv *server.FiberServer, done chan<- struct{}, stopGame func()) {
	<-ctx.Done()
	// a second signal kills the process
	stop()
	log.Info("[SERVER] Shutting down gracefully, press Ctrl+C again to force")

	if err := srv.Shutdown(shutdownTimeout); err != nil {
		log.WithError(err).Error("[SERVER] Forced to shutdown")
	}
	stopGame()
	close(done)
}
