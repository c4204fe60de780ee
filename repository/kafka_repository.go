package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type KafkaRepository struct {
	Writer   *kafka.Writer
	Brokers  []string
	Topic    string
	DLQTopic string
}

func NewKafkaRepository(brokers []string, topic, dlqTopic string) *KafkaRepository {
	return &KafkaRepository{
		Writer: &kafka.Writer{
			Addr: kafka.TCP(brokers...),
			// 같은 유저의 요청은 같은 파티션으로 (순서 보장)
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		Brokers:  brokers,
		Topic:    topic,
		DLQTopic: dlqTopic,
	}
}

func (r *KafkaRepository) PublishReservation(ctx context.Context, msg ReservationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reservation message: %w", err)
	}

	return r.Writer.WriteMessages(ctx,
		kafka.Message{
			Topic: r.Topic,
			Key:   []byte(msg.UserID),
			Value: body,
			Headers: []kafka.Header{
				{Key: "request_id", Value: []byte(msg.RequestID)},
			},
		},
	)
}

// PublishToDLQ 처리 실패 메시지를 원본 그대로 DLQ 토픽에 보관합니다 (자동 재시도 없음).
func (r *KafkaRepository) PublishToDLQ(ctx context.Context, key, value []byte, reason string) error {
	return r.Writer.WriteMessages(ctx,
		kafka.Message{
			Topic: r.DLQTopic,
			Key:   key,
			Value: value,
			Headers: []kafka.Header{
				{Key: "error_reason", Value: []byte(reason)},
			},
		},
	)
}

func (r *KafkaRepository) Close() error {
	return r.Writer.Close()
}
