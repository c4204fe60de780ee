package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"booking-system/repository"
	"booking-system/service"
)

// Response: 공통 응답 구조체
type Response struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	ErrorReason service.Reason `json:"error_reason,omitempty"`
	Data        any            `json:"data,omitempty"`
}

// BookingService 핸들러가 사용하는 예약 코어 (service.BookingService)
type BookingService interface {
	Reserve(ctx context.Context, req service.ReservationRequest) service.ReservationResult
	ReserveAsync(ctx context.Context, req service.ReservationRequest) service.SubmissionResult
	Cancel(ctx context.Context, bookingID uint, userID string) service.CancellationResult
	UserBookings(ctx context.Context, userID string) ([]repository.UserBooking, error)
}

// HealthCheck 의존성 하나의 상태 확인 (DB ping, Redis ping 등)
type HealthCheck func(ctx context.Context) error

type cancelRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

/*
 * BookingHandler: 예약 요청을 처리하는 컨트롤러 레이어
 * 요청 바디를 경계에서 검증한 뒤 서비스 결과(Reason)를 HTTP 상태 코드로 변환합니다.
 */
type BookingHandler struct {
	Service BookingService
	Checks  map[string]HealthCheck
	logger  *slog.Logger
}

func NewBookingHandler(svc BookingService, checks map[string]HealthCheck, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{Service: svc, Checks: checks, logger: logger}
}

// statusFor 거절 사유 → HTTP 상태 코드
func statusFor(reason service.Reason) int {
	switch reason {
	case service.ReasonEventNotFound, service.ReasonNotFoundOrNotOwned:
		return http.StatusNotFound
	case service.ReasonDuplicateBooking, service.ReasonInvalidRequest:
		// [400 Bad Request] 1인 1매 제한 / 잘못된 요청
		return http.StatusBadRequest
	case service.ReasonSoldOut:
		// [410 Gone] 더 이상 좌석이 없음
		return http.StatusGone
	case service.ReasonRequestInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, reason service.Reason) {
	c.JSON(statusFor(reason), Response{
		Success:     false,
		Message:     reason.Message(),
		ErrorReason: reason,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Message: "잘못된 요청입니다: " + err.Error()})
}

// Reserve: POST /api/bookings/reserve
func (h *BookingHandler) Reserve(c *gin.Context) {
	// 1. 요청 검증
	var req service.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	// 2. 예약 승인 프로토콜
	result := h.Service.Reserve(c.Request.Context(), req)

	// 3. 결과 → 응답
	if !result.Admitted {
		fail(c, result.Reason)
		return
	}
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "예약 성공!",
		Data:    result.Booking,
	})
}

// ReserveAsync: POST /api/bookings/reserve-async
// 202 는 대기열 접수일 뿐이며 최종 결과는 호출자에게 전달되지 않습니다.
func (h *BookingHandler) ReserveAsync(c *gin.Context) {
	var req service.ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}

	result := h.Service.ReserveAsync(c.Request.Context(), req)
	if !result.Accepted {
		fail(c, result.Reason)
		return
	}
	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Message: "예약 요청이 접수되었습니다.",
		Data:    gin.H{"request_id": result.RequestID},
	})
}

// Cancel: DELETE /api/bookings/:booking_id (body: {"user_id": ...})
func (h *BookingHandler) Cancel(c *gin.Context) {
	bookingID, err := strconv.ParseUint(c.Param("booking_id"), 10, 64)
	if err != nil || bookingID == 0 {
		badRequest(c, errors.New("booking_id must be a positive integer"))
		return
	}

	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result := h.Service.Cancel(c.Request.Context(), uint(bookingID), req.UserID)
	if !result.Cancelled {
		fail(c, result.Reason)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "예약이 취소되었습니다."})
}

// UserBookings: GET /api/bookings/user/:user_id
func (h *BookingHandler) UserBookings(c *gin.Context) {
	userID := c.Param("user_id")

	bookings, err := h.Service.UserBookings(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidUserID) {
			badRequest(c, err)
			return
		}
		h.logger.Error("예약 목록 조회 실패", "user_id", userID, "error", err)
		fail(c, service.ReasonInternal)
		return
	}
	if bookings == nil {
		bookings = []repository.UserBooking{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "OK", Data: bookings})
}

// Health: GET /health, GET /api/bookings/health
func (h *BookingHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("헬스 체크 실패", "dependency", name, "error", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	c.JSON(status, gin.H{
		"status":    http.StatusText(status),
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
