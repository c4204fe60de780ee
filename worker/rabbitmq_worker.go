package worker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"booking-system/metrics"
	"booking-system/repository"
)

// 한 번에 미확인 메시지 1건만 받습니다.
const defaultPrefetch = 1

type deliverySource interface {
	Consume(prefetch int) (<-chan amqp.Delivery, error)
	Close() error
}

type RabbitMQWorker struct {
	Source    deliverySource
	Processor *Processor

	prefetch int
	logger   *slog.Logger
}

func NewRabbitMQWorker(source deliverySource, processor *Processor, logger *slog.Logger) *RabbitMQWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RabbitMQWorker{
		Source:    source,
		Processor: processor,
		prefetch:  defaultPrefetch,
		logger:    logger,
	}
}

func (w *RabbitMQWorker) Start(ctx context.Context) error {
	deliveries, err := w.Source.Consume(w.prefetch)
	if err != nil {
		return err
	}

	w.logger.Info("RabbitMQ 예약 워커 시작", "prefetch", w.prefetch)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("RabbitMQ 예약 워커 종료")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return repository.ErrBrokerClosed
			}
			w.handle(ctx, d)
		}
	}
}

// handle 터미널 결과면 ack, InternalError/잘못된 메시지면 재큐잉 없이 nack (poison message 방지)
func (w *RabbitMQWorker) handle(ctx context.Context, d amqp.Delivery) {
	log := w.logger.With("delivery_tag", d.DeliveryTag, "message_id", d.MessageId)

	// 이미 받은 메시지는 종료 신호가 와도 끝까지 처리합니다. 취소로 인한 실패를 poison 메시지로 nack 하면 유실됩니다.
	if err := w.Processor.Process(context.WithoutCancel(ctx), d.Body); err != nil {
		log.Warn("예약 메시지 처리 실패, 재큐잉 없이 nack", "error", err)
		metrics.WorkerMessages.WithLabelValues("nack").Inc()
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("nack 실패", "error", nackErr)
		}
		return
	}

	metrics.WorkerMessages.WithLabelValues("ack").Inc()
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("ack 실패", "error", ackErr)
	}
}

func (w *RabbitMQWorker) Close() error {
	return w.Source.Close()
}
