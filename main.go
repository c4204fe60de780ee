package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"booking-system/bootstrap"
	"booking-system/config"
	"booking-system/handler"
)

func main() {
	// 1. 설정 로드 (.env + 환경 변수)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("설정 로드 실패", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. DB / Redis / 큐 연결 및 서비스 조립
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("의존성 초기화 실패", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("리소스 정리 실패", "error", err)
		}
	}()

	// 3. 메트릭 서버
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("Prometheus metrics server started", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("메트릭 서버 실행 실패", "error", err)
		}
	}()

	// 4. Handler 조립 및 경로 등록
	gin.SetMode(gin.ReleaseMode)
	h := handler.NewBookingHandler(app.Service, app.HealthChecks(), logger)
	router := handler.NewRouter(h, logger)

	// 5. 서버 실행 설정
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("예약 API 서버 시작",
			"addr", cfg.HTTPAddr,
			"reserve", "POST /api/bookings/reserve",
			"reserve_async", "POST /api/bookings/reserve-async",
			"cancel", "DELETE /api/bookings/:booking_id",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("서버 시작 실패", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("서버 종료 중...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API 서버 종료 실패", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("메트릭 서버 종료 실패", "error", err)
	}
}
