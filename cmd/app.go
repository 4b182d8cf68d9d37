package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrave1/CareCall/internal/application/config"
	"github.com/qrave1/CareCall/internal/application/constant"
	"github.com/qrave1/CareCall/internal/application/metric"
	"github.com/qrave1/CareCall/internal/domain/models"
	"github.com/qrave1/CareCall/internal/infra/adapters/memory"
	"github.com/qrave1/CareCall/internal/infra/adapters/postgres"
	"github.com/qrave1/CareCall/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/CareCall/internal/infra/ports/http/handlers"
	"github.com/qrave1/CareCall/internal/infra/ports/http/server"
	"github.com/qrave1/CareCall/internal/infra/ports/turn"
	"github.com/qrave1/CareCall/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		setupLogger("INFO", false)
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel, cfg.Debug)

	historyRepo := repository.NewNoopCallSessionRepo()

	var healthChecks []metric.HealthCheck

	if cfg.Postgres.Enabled {
		dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("connect to postgres", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer dbConn.Close()

		historyRepo = repository.NewCallSessionRepo(dbConn)
		healthChecks = append(healthChecks, metric.HealthCheck{Name: "postgres", Check: dbConn.PingContext})
	} else {
		slog.Warn("postgres disabled, call history is not persisted")
	}

	if cfg.TurnRelay.Enabled {
		relay, err := turn.NewRelay(cfg.TurnRelay, cfg.CoturnServer.Secret)
		if err != nil {
			slog.Error("start TURN relay", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer relay.Close()
	}

	wsConnRepo := memory.NewWSConnectionRepository(cfg.WSSendBuffer)
	roomRegistry := memory.NewRoomRegistry(wsConnRepo)

	iceUsecase := usecase.NewIceUsecase(cfg)
	signalingUsecase := usecase.NewSignalingUsecase(roomRegistry, wsConnRepo, historyRepo, iceUsecase)

	iceHandler := handlers.NewIceHandler(iceUsecase)
	roomHandler := handlers.NewRoomHandler(roomRegistry, historyRepo)
	wsHandler := handlers.NewWebSocketHandler(cfg, signalingUsecase, wsConnRepo)

	echoSrv := server.New(cfg, iceHandler, roomHandler, wsHandler)

	metricsSrv := metric.NewServer(healthChecks...)

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	// Запускаем сервер метрик
	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info(
		"carecall started",
		slog.String("port", cfg.Port),
		slog.String("metric_port", cfg.MetricPort),
		slog.Bool("turn", cfg.TurnEnabled()),
	)

	// Ожидаем сигнал завершения или ошибку сервера
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

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}

	// hijacked ws соединения Shutdown не ждёт, закрываем незавершённые записи истории
	closed, err := historyRepo.CloseAll(timeoutCtx, models.EndReasonShutdown)
	if err != nil {
		slog.Error("close call history on shutdown", slog.Any(constant.Error, err))
	} else if closed > 0 {
		slog.Info("call history closed on shutdown", slog.Int64("sessions", closed))
	}
}
