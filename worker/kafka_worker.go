package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"booking-system/metrics"
	"booking-system/repository"
)

const (
	fetchRetryDelay = time.Second
	dlqIdleTimeout  = 3 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dlqPublisher interface {
	PublishToDLQ(ctx context.Context, key, value []byte, reason string) error
}

type KafkaWorkerConfig struct {
	Brokers         []string
	Topic           string
	DLQTopic        string
	GroupID         string
	RecoveryGroupID string
}

// KafkaWorker 예약 토픽을 한 번에 한 메시지씩 처리합니다.
// 처리 후에만 커밋하고, InternalError 는 재시도하지 않고 DLQ 로 보낸 뒤 커밋합니다.
type KafkaWorker struct {
	Reader    messageReader
	DLQ       dlqPublisher
	Processor *Processor

	newDLQReader func() messageReader
	logger       *slog.Logger
}

func NewKafkaWorker(cfg KafkaWorkerConfig, processor *Processor, dlq *repository.KafkaRepository, logger *slog.Logger) *KafkaWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaWorker{
		Reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // 동기 커밋
			StartOffset:    kafka.FirstOffset,
		}),
		DLQ:          dlq,
		Processor:    processor,
		newDLQReader: recoveryReader(cfg),
		logger:       logger,
	}
}

// NewKafkaRecoveryWorker ProcessDLQ 전용 워커. 예약 토픽의 컨슈머 그룹에는 참여하지 않습니다.
func NewKafkaRecoveryWorker(cfg KafkaWorkerConfig, processor *Processor, logger *slog.Logger) *KafkaWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaWorker{
		Processor:    processor,
		newDLQReader: recoveryReader(cfg),
		logger:       logger,
	}
}

// recoveryReader 복구용 리더 (그룹 ID를 다르게 해서 DLQ 를 처음부터 읽음)
func recoveryReader(cfg KafkaWorkerConfig) func() messageReader {
	return func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.DLQTopic,
			GroupID:     cfg.RecoveryGroupID,
			StartOffset: kafka.FirstOffset,
		})
	}
}

func (w *KafkaWorker) Start(ctx context.Context) error {
	w.logger.Info("Kafka 예약 워커 시작")

	for {
		m, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				w.logger.Info("Kafka 예약 워커 종료")
				return nil
			}
			w.logger.Error("메시지 읽기 에러", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		w.handle(ctx, m)
	}
}

func (w *KafkaWorker) handle(ctx context.Context, m kafka.Message) {
	log := w.logger.With("partition", m.Partition, "offset", m.Offset)

	if err := w.Processor.Process(ctx, m.Value); err != nil {
		log.Warn("예약 메시지 처리 실패, DLQ 이동 (재시도 없음)", "error", err)

		if dlqErr := w.DLQ.PublishToDLQ(ctx, m.Key, m.Value, err.Error()); dlqErr != nil {
			metrics.WorkerMessages.WithLabelValues("dlq_failed").Inc()
			log.Error("DLQ 전송 실패, 메시지 유실", "error", dlqErr)
		} else {
			metrics.WorkerMessages.WithLabelValues("nack").Inc()
		}
	} else {
		metrics.WorkerMessages.WithLabelValues("ack").Inc()
	}

	if err := w.Reader.CommitMessages(ctx, m); err != nil {
		log.Error("오프셋 커밋 실패", "error", err)
	}
}

// ProcessDLQ 운영자가 수동으로 실행하는 DLQ 재처리.
// 더 읽을 메시지가 dlqIdleTimeout 동안 없으면 끝납니다. 재처리 실패는 다시 DLQ 로 보내지 않습니다.
func (w *KafkaWorker) ProcessDLQ(ctx context.Context) (processed, failed int) {
	w.logger.Info("DLQ 복구 시작")

	dlqReader := w.newDLQReader()
	defer dlqReader.Close()

	for {
		readCtx, cancel := context.WithTimeout(ctx, dlqIdleTimeout)
		m, err := dlqReader.FetchMessage(readCtx)
		cancel()

		if err != nil {
			w.logger.Info("DLQ 복구 완료", "processed", processed, "failed", failed)
			return processed, failed
		}

		if err := w.Processor.Process(ctx, m.Value); err != nil {
			failed++
			w.logger.Error("DLQ 재처리 실패", "offset", m.Offset, "error", err)
		} else {
			processed++
		}

		if err := dlqReader.CommitMessages(ctx, m); err != nil {
			w.logger.Error("DLQ 오프셋 커밋 실패", "error", err)
		}
	}
}

func (w *KafkaWorker) Close() error {
	if w.Reader == nil {
		return nil
	}
	return w.Reader.Close()
}
