package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"booking-system/metrics"
	"booking-system/repository"
)

var errQueueNotConfigured = errors.New("reservation queue is not configured")

// ReserveAsync 비동기 예약 접수.
// 캐시 마커로 명백한 중복만 걸러내고 나머지는 큐에 넣은 뒤 바로 "접수됨"을 반환합니다.
// 실제 승인은 워커가 Reserve 로 수행하며, 그 결과(매진/중복 등)는 원래 호출자에게
// 전달되지 않습니다 (best-effort, fire-and-forget).
func (s *BookingService) ReserveAsync(ctx context.Context, req ReservationRequest) (result SubmissionResult) {
	defer func() {
		metrics.AsyncSubmissions.WithLabelValues(result.outcome()).Inc()
	}()

	log := s.logger.With("event_id", req.EventID, "user_id", req.UserID)

	if err := req.Validate(); err != nil {
		log.Warn("잘못된 비동기 예약 요청", "error", err)
		return SubmissionResult{Reason: ReasonInvalidRequest}
	}

	// 1. 락 없이 캐시 마커만 확인
	if s.hasCachedBooking(ctx, log, req.EventID, req.UserID) {
		return SubmissionResult{Reason: ReasonDuplicateBooking}
	}

	if s.Queue == nil {
		log.Error("큐 발행 실패", "error", errQueueNotConfigured)
		return SubmissionResult{Reason: ReasonInternal}
	}

	// 2. 접수 시각을 붙여 큐에 발행
	msg := repository.ReservationMessage{
		RequestID: uuid.NewString(),
		EventID:   req.EventID,
		UserID:    req.UserID,
		Timestamp: s.now().UTC(),
	}
	if err := s.Queue.PublishReservation(ctx, msg); err != nil {
		log.Error("큐 발행 실패", "request_id", msg.RequestID, "error", err)
		return SubmissionResult{Reason: ReasonInternal}
	}

	log.Info("비동기 예약 접수", "request_id", msg.RequestID)
	return SubmissionResult{Accepted: true, RequestID: msg.RequestID}
}
