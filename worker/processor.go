package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"booking-system/repository"
	"booking-system/service"
)

var (
	ErrMalformedMessage = errors.New("malformed reservation message")
	ErrAdmissionFailed  = errors.New("reservation admission failed with internal error")
)

// Reserver 워커가 호출하는 예약 승인 로직 (service.BookingService)
type Reserver interface {
	Reserve(ctx context.Context, req service.ReservationRequest) service.ReservationResult
}

// Processor 큐 메시지 1건을 동기 예약과 같은 승인 프로토콜로 처리합니다.
// nil 반환 = ack, 에러 반환 = 재큐잉 없이 nack.
type Processor struct {
	Service Reserver
	Logger  *slog.Logger
}

func NewProcessor(svc Reserver, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Service: svc, Logger: logger}
}

func (p *Processor) Process(ctx context.Context, body []byte) error {
	var msg repository.ReservationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	req := service.ReservationRequest{EventID: msg.EventID, UserID: msg.UserID}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	log := p.Logger.With("request_id", msg.RequestID, "event_id", msg.EventID, "user_id", msg.UserID)

	result := p.Service.Reserve(ctx, req)
	if !result.Terminal() {
		return ErrAdmissionFailed
	}

	// 호출자에게 결과를 돌려줄 경로가 없으므로 로그로만 남깁니다.
	if result.Admitted {
		log.Info("비동기 예약 승인", "booking_id", result.Booking.ID, "submitted_at", msg.Timestamp)
	} else {
		log.Info("비동기 예약 거절", "reason", result.Reason, "submitted_at", msg.Timestamp)
	}
	return nil
}
