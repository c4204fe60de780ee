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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"booking-system/bootstrap"
	"booking-system/config"
	"booking-system/repository"
	"booking-system/worker"
)

type consumer interface {
	Start(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("설정 로드 실패", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel).With("component", "worker")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 의존성 조립 (API 서버와 같은 승인 로직 사용)
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("의존성 초기화 실패", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go func() {
		logger.Info("Prometheus 메트릭 서버 시작", "addr", cfg.MetricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("메트릭 서버 실행 실패", "error", err)
		}
	}()

	// 2. 워커 생성 및 시작
	c, err := newConsumer(app, logger)
	if err != nil {
		logger.Error("워커 생성 실패", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("워커 비정상 종료", "error", err)
		os.Exit(1)
	}
}

func newConsumer(app *bootstrap.App, logger *slog.Logger) (consumer, error) {
	processor := worker.NewProcessor(app.Service, logger)
	cfg := app.Config

	switch q := app.Queue.(type) {
	case *repository.KafkaRepository:
		return worker.NewKafkaWorker(worker.KafkaWorkerConfig{
			Brokers:         cfg.KafkaBrokers,
			Topic:           cfg.KafkaTopic,
			DLQTopic:        cfg.KafkaDLQTopic,
			GroupID:         cfg.KafkaGroupID,
			RecoveryGroupID: cfg.KafkaRecoveryID,
		}, processor, q, logger), nil
	case *repository.RabbitMQRepository:
		return worker.NewRabbitMQWorker(q, processor, logger), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.QueueDriver)
	}
}
