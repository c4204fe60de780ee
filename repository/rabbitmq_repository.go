package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrBrokerClosed = errors.New("rabbitmq connection closed")

// RabbitMQRepository direct exchange → durable queue 로 예약 요청을 발행/소비합니다.
type RabbitMQRepository struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	queue      string
	routingKey string

	mu sync.Mutex
}

func NewRabbitMQRepository(url, exchange, queue, routingKey string) (*RabbitMQRepository, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, exchange, queue, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQRepository{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		queue:      queue,
		routingKey: routingKey,
	}, nil
}

func declareTopology(ch *amqp.Channel, exchange, queue, routingKey string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (r *RabbitMQRepository) PublishReservation(ctx context.Context, msg ReservationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reservation message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return ErrBrokerClosed
	}

	return r.channel.PublishWithContext(ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.RequestID,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
}

// Consume prefetch 개수만큼만 미확인(unacked) 메시지를 받도록 QoS 를 건 뒤 수동 ack 모드로 소비합니다.
func (r *RabbitMQRepository) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return nil, ErrBrokerClosed
	}

	if err := r.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return r.channel.Consume(
		r.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
}

func (r *RabbitMQRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 워커와 App 양쪽에서 닫을 수 있으므로 두 번째 호출은 무시
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
		r.channel = nil
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
		r.conn = nil
	}
	return errors.Join(errs...)
}
