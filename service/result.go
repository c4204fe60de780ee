package service

import (
	"errors"
	"strings"

	"booking-system/repository"
)

// Reason 예약/취소 거절 사유. 비즈니스 거절은 정상 결과이며 에러로 올리지 않습니다.
type Reason string

const (
	ReasonEventNotFound      Reason = "EVENT_NOT_FOUND"
	ReasonDuplicateBooking   Reason = "DUPLICATE_BOOKING"
	ReasonSoldOut            Reason = "SOLD_OUT"
	ReasonRequestInProgress  Reason = "REQUEST_IN_PROGRESS"
	ReasonNotFoundOrNotOwned Reason = "NOT_FOUND_OR_NOT_OWNED"
	ReasonInvalidRequest     Reason = "INVALID_REQUEST"
	ReasonInternal           Reason = "INTERNAL_ERROR"
)

// Message 클라이언트에 노출되는 메시지. InternalError 는 내부 사유를 숨깁니다.
func (r Reason) Message() string {
	switch r {
	case ReasonEventNotFound:
		return "존재하지 않는 이벤트입니다."
	case ReasonDuplicateBooking:
		return "이미 해당 이벤트를 예약했습니다. (1인 1매)"
	case ReasonSoldOut:
		return "매진되었습니다."
	case ReasonRequestInProgress:
		return "같은 예약 요청이 처리 중입니다. 잠시 후 다시 시도해 주세요."
	case ReasonNotFoundOrNotOwned:
		return "예약 내역이 없거나 이미 취소되었습니다."
	case ReasonInvalidRequest:
		return "잘못된 요청입니다."
	default:
		return "시스템 오류가 발생했습니다."
	}
}

var (
	ErrInvalidEventID = errors.New("valid event_id is required")
	ErrInvalidUserID  = errors.New("valid user_id is required")
)

// ReservationRequest 동기/비동기 예약 공통 요청. gin 바인딩 태그와 Validate 가 같은 규칙을 갖습니다.
type ReservationRequest struct {
	EventID uint   `json:"event_id" binding:"required,gt=0"`
	UserID  string `json:"user_id" binding:"required"`
}

func (r ReservationRequest) Validate() error {
	if r.EventID == 0 {
		return ErrInvalidEventID
	}
	if strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidUserID
	}
	return nil
}

type ReservationResult struct {
	Admitted bool                `json:"admitted"`
	Booking  *repository.Booking `json:"booking,omitempty"`
	Reason   Reason              `json:"error_reason,omitempty"`
}

// Terminal InternalError 를 제외한 모든 결과는 재처리할 필요가 없는 최종 결과입니다.
func (r ReservationResult) Terminal() bool {
	return r.Reason != ReasonInternal
}

func (r ReservationResult) outcome() string {
	if r.Admitted {
		return "admitted"
	}
	return string(r.Reason)
}

type CancellationResult struct {
	Cancelled bool   `json:"cancelled"`
	Reason    Reason `json:"error_reason,omitempty"`
}

func (r CancellationResult) outcome() string {
	if r.Cancelled {
		return "cancelled"
	}
	return string(r.Reason)
}

// SubmissionResult 비동기 접수 결과. Accepted 는 "처리 대기열에 들어갔다"는 의미일 뿐
// 예약 확정이 아닙니다. 이후 워커에서 매진/중복으로 거절돼도 호출자에게 알리지 않습니다.
type SubmissionResult struct {
	Accepted  bool   `json:"accepted"`
	RequestID string `json:"request_id,omitempty"`
	Reason    Reason `json:"error_reason,omitempty"`
}

func (r SubmissionResult) outcome() string {
	if r.Accepted {
		return "accepted"
	}
	return string(r.Reason)
}

func admitted(b *repository.Booking) ReservationResult {
	return ReservationResult{Admitted: true, Booking: b}
}

func rejected(reason Reason) ReservationResult {
	return ReservationResult{Reason: reason}
}
