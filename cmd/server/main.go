package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/cache"
	"github.com/render-tgm/server/internal/config"
	"github.com/render-tgm/server/internal/database"
	"github.com/render-tgm/server/internal/enhance"
	"github.com/render-tgm/server/internal/handlers"
	"github.com/render-tgm/server/internal/jobs"
	"github.com/render-tgm/server/internal/log"
	"github.com/render-tgm/server/internal/mail"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/server"
	"github.com/render-tgm/server/internal/service"
	"github.com/render-tgm/server/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	if err := database.Migrate("file://migrations", cfg.Postgres.DSN); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	layout := storage.NewLayout(cfg.Storage.Root, logger)

	backup, err := storage.NewBackup(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init backup store")
	}
	if backup != nil {
		if err := backup.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure backup bucket failed")
		}
	}

	// External ML enhancer first when configured, deterministic filter
	// chain as the fallback tier.
	var tiers []enhance.Enhancer
	if cfg.Enhance.Script != "" {
		tiers = append(tiers, enhance.NewExternal(cfg.Enhance.Command, cfg.Enhance.Script, cfg.Enhance.Timeout, logger))
	}
	tiers = append(tiers, enhance.NewFilter())
	enhancer := enhance.NewChain(logger, tiers...)

	imageRepo := repository.NewImageRepository(dbPool)
	imageService := service.NewImageService(imageRepo, layout, enhancer, backup, logger)
	mailer := mail.NewSMTPSender(cfg.SMTP, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, dbPool, redisClient, layout, imageService, mailer)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, layout)

	scheduler := jobs.NewScheduler(
		repository.NewUserRepository(dbPool),
		repository.NewSessionRepository(dbPool),
		imageRepo,
		layout,
		logger,
	)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
