package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/application/constant"
	"github.com/collabrixo/collabrixo/internal/application/metric"
	"github.com/collabrixo/collabrixo/internal/infra/adapters/postgres"
	"github.com/collabrixo/collabrixo/internal/infra/adapters/postgres/repository"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/handlers"
	"github.com/collabrixo/collabrixo/internal/infra/ports/http/server"
	"github.com/collabrixo/collabrixo/internal/transport"
	"github.com/collabrixo/collabrixo/internal/transport/hubbus"
	"github.com/collabrixo/collabrixo/internal/transport/redisbus"
	"github.com/collabrixo/collabrixo/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	var bus transport.PubSub
	switch cfg.Transport {
	case "redis":
		redisBus, err := redisbus.New(ctx, cfg.Redis)
		if err != nil {
			slog.Error("connect to redis", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer redisBus.Close()

		bus = redisBus
	default:
		bus = hubbus.New()
	}

	userRepo := repository.NewUserRepo(dbConn)
	conferenceRepo := repository.NewConferenceRepo(dbConn)

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo)
	conferenceUsecase := usecase.NewConferenceUsecase(conferenceRepo)

	authHandler := handlers.NewAuthHandler(userUsecase)
	conferenceHandler := handlers.NewConferenceHandler(conferenceUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, bus)

	echoSrv := server.New(cfg, authHandler, conferenceHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
