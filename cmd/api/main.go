package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	"pulsewatch/config"
	"pulsewatch/internals/app"
	"pulsewatch/internals/server"
	"pulsewatch/pkg/db"
	"pulsewatch/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("env.yaml")
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}

	// Done channel of ctx closes on SIGINT/SIGTERM; every loop hangs off it
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Init(cfg.ServiceName, cfg.Env)
	log.Info().Msg("logger initialized")

	dbPool, err := db.Connect(ctx, &cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize db pool")
	}

	container, err := app.NewContainer(ctx, dbPool, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	log.Info().Msg("dependencies initialized")

	// background loops
	go container.Dispatcher.Run()
	go container.Ingestor.Run()
	go container.Watchdog.Run()
	go container.Reconciler.Run()
	go container.NotifyRetry.Run()
	container.Notifier.Run()
	app.StartConsumer(ctx, container)

	log.Info().Msg("pipeline loops started")

	router := app.RegisterRoutes(container)
	log.Info().Msg("routes registered")

	srv := server.New(fmt.Sprintf(":%d", cfg.Port), router, log)
	srv.Start()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// stop accepting requests first, then drain the pipeline
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dependencies shutdown failed")
	}

	log.Info().Msg("graceful shutdown complete")
}
