package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"booking-system/metrics"
	"booking-system/repository"
)

const (
	DefaultLockTTL  = 10 * time.Second
	DefaultCacheTTL = 300 * time.Second
)

var errNotOwned = errors.New("booking not found or not owned by user")

type Options struct {
	LockTTL  time.Duration
	CacheTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// BookingService 예약 승인(admission) 코어.
// 프로세스 내부에 공유 상태가 없고, 락/캐시는 모두 CacheRepository(Redis)에 있으므로
// 여러 인스턴스를 동시에 띄워도 됩니다.
type BookingService struct {
	Store repository.BookingRepository
	Cache repository.CacheRepository
	Queue repository.QueueRepository

	lockTTL  time.Duration
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewBookingService(store repository.BookingRepository, cache repository.CacheRepository, queue repository.QueueRepository, opts Options) *BookingService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &BookingService{
		Store:    store,
		Cache:    cache,
		Queue:    queue,
		lockTTL:  opts.LockTTL,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Reserve 동기 예약. 결과는 항상 Admitted / Rejected(reason) / InternalError 중 하나입니다.
func (s *BookingService) Reserve(ctx context.Context, req ReservationRequest) (result ReservationResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("예약 처리 중 panic", "event_id", req.EventID, "user_id", req.UserID, "panic", p)
			result = rejected(ReasonInternal)
		}
		metrics.ReservationResults.WithLabelValues(result.outcome()).Inc()
		metrics.ReservationDuration.Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		// 경계에서 걸러져야 하지만, 큐에서 들어온 요청도 같은 규칙으로 막습니다.
		if errors.Is(err, ErrInvalidEventID) {
			return rejected(ReasonEventNotFound)
		}
		s.logger.Warn("잘못된 예약 요청", "event_id", req.EventID, "error", err)
		return rejected(ReasonInvalidRequest)
	}

	return s.reserve(ctx, req)
}

func (s *BookingService) reserve(ctx context.Context, req ReservationRequest) ReservationResult {
	log := s.logger.With("event_id", req.EventID, "user_id", req.UserID)

	// 1. 이벤트 + 현재 예약 수 조회 (락 없이)
	event, err := s.Store.GetEventWithCount(ctx, req.EventID)
	if errors.Is(err, repository.ErrNotFound) {
		return rejected(ReasonEventNotFound)
	}
	if err != nil {
		return s.internal(log, "이벤트 조회 실패", err)
	}

	// 2. 빠른 중복 확인 (Redis 마커). 마커가 없어도 4단계에서 DB로 다시 확인합니다.
	if s.hasCachedBooking(ctx, log, req.EventID, req.UserID) {
		return rejected(ReasonDuplicateBooking)
	}

	// 3. (event, user) 락 획득 시도. 대기하지 않고 바로 실패시킵니다.
	lockKey := repository.LockKey(req.EventID, req.UserID)
	locked, err := s.Cache.Lock(ctx, lockKey, s.lockTTL)
	if err != nil {
		return s.internal(log, "락 획득 실패", err)
	}
	if !locked {
		metrics.LockContention.Inc()
		return rejected(ReasonRequestInProgress)
	}
	// 7. 어떤 경로로 빠져나가든 락 반납
	defer s.unlock(ctx, log, lockKey)

	return s.admit(ctx, log, event, req.UserID)
}

// admit 락 안에서 실행되는 4~6 단계
func (s *BookingService) admit(ctx context.Context, log *slog.Logger, event *repository.EventWithCount, userID string) ReservationResult {
	// 4. DB 기준 중복 확인. 있으면 캐시 마커를 복구해 다음 요청은 2단계에서 걸러지게 합니다.
	_, err := s.Store.GetBooking(ctx, event.ID, userID)
	switch {
	case err == nil:
		s.markBooked(ctx, log, event.ID, userID)
		return rejected(ReasonDuplicateBooking)
	case !errors.Is(err, repository.ErrNotFound):
		return s.internal(log, "기존 예약 조회 실패", err)
	}

	// 5. 정원 확인
	booked, err := s.bookedSeats(ctx, log, event.ID, event.TotalSeats)
	if err != nil {
		return s.internal(log, "예약 수 조회 실패", err)
	}
	if booked >= event.TotalSeats {
		return rejected(ReasonSoldOut)
	}

	// 6. 저장. DB 의 유니크 제약/정원 잠금이 최종 방어선입니다.
	booking, err := s.Store.InsertBooking(ctx, event.ID, userID)
	switch {
	case errors.Is(err, repository.ErrDuplicateBooking):
		log.Warn("DB 유니크 제약으로 중복 예약 차단")
		s.markBooked(ctx, log, event.ID, userID)
		return rejected(ReasonDuplicateBooking)
	case errors.Is(err, repository.ErrCapacityExceeded):
		s.invalidateEvent(ctx, log, event.ID)
		return rejected(ReasonSoldOut)
	case errors.Is(err, repository.ErrNotFound):
		return rejected(ReasonEventNotFound)
	case err != nil:
		return s.internal(log, "예약 저장 실패", err)
	}

	// 캐시는 힌트이므로 실패해도 예약은 확정입니다. 예약 수는 감소가 아니라 삭제(무효화)합니다.
	s.markBooked(ctx, log, event.ID, userID)
	s.invalidateEvent(ctx, log, event.ID)

	log.Info("예약 성공", "booking_id", booking.ID)
	return admitted(booking)
}

// Cancel 예약 취소. 삭제 + 캐시 무효화가 한 트랜잭션이며, 무효화에 실패하면 삭제도 롤백됩니다.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint, userID string) (result CancellationResult) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("취소 처리 중 panic", "booking_id", bookingID, "user_id", userID, "panic", p)
			result = CancellationResult{Reason: ReasonInternal}
		}
		metrics.CancellationResults.WithLabelValues(result.outcome()).Inc()
	}()

	if bookingID == 0 || userID == "" {
		return CancellationResult{Reason: ReasonNotFoundOrNotOwned}
	}

	log := s.logger.With("booking_id", bookingID, "user_id", userID)

	var eventID uint
	err := s.Store.WithinTx(ctx, func(tx repository.BookingRepository) error {
		deletedEventID, affected, err := tx.DeleteBooking(ctx, bookingID, userID)
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		if affected == 0 {
			return errNotOwned
		}

		eventID = deletedEventID
		log = log.With("event_id", eventID)
		if err := s.Cache.InvalidateEvent(ctx, eventID); err != nil {
			return fmt.Errorf("invalidate event cache: %w", err)
		}
		if err := s.Cache.RemoveUserBooking(ctx, eventID, userID); err != nil {
			return fmt.Errorf("remove booking marker: %w", err)
		}
		return nil
	})

	switch {
	case errors.Is(err, errNotOwned):
		return CancellationResult{Reason: ReasonNotFoundOrNotOwned}
	case err != nil:
		log.Error("예약 취소 실패 (롤백됨)", "error", err)
		return CancellationResult{Reason: ReasonInternal}
	}

	// 커밋 전 무효화와 커밋 사이에 다른 요청이 삭제 전 예약 수를 다시 캐시할 수 있으므로 한 번 더 지웁니다.
	s.invalidateEvent(ctx, log, eventID)

	log.Info("예약 취소 완료")
	return CancellationResult{Cancelled: true}
}

// UserBookings 사용자 예약 목록 (최신순)
func (s *BookingService) UserBookings(ctx context.Context, userID string) ([]repository.UserBooking, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	bookings, err := s.Store.ListUserBookings(ctx, userID)
	if err != nil {
		s.logger.Error("예약 목록 조회 실패", "user_id", userID, "error", err)
		return nil, err
	}
	return bookings, nil
}

// hasCachedBooking 마커 조회 실패는 "없음"으로 취급하고 DB 확인으로 넘깁니다.
func (s *BookingService) hasCachedBooking(ctx context.Context, log *slog.Logger, eventID uint, userID string) bool {
	found, err := s.Cache.HasUserBooking(ctx, eventID, userID)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("marker", "error").Inc()
		log.Warn("예약 마커 조회 실패, DB 확인으로 진행", "error", err)
		return false
	}
	if found {
		metrics.CacheLookups.WithLabelValues("marker", "hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("marker", "miss").Inc()
	}
	return found
}

// bookedSeats 캐시된 예약 수를 우선 사용합니다. 단, 캐시 값이 "매진"을 가리키면
// 캐시만 믿고 거절하지 않도록 DB 에서 다시 세어 확인합니다.
func (s *BookingService) bookedSeats(ctx context.Context, log *slog.Logger, eventID uint, totalSeats int) (int, error) {
	cached, ok, err := s.Cache.GetBookedSeats(ctx, eventID)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("booked_seats", "error").Inc()
		log.Warn("예약 수 캐시 조회 실패, DB 로 재계산", "error", err)
	case ok && cached < totalSeats:
		metrics.CacheLookups.WithLabelValues("booked_seats", "hit").Inc()
		return cached, nil
	default:
		metrics.CacheLookups.WithLabelValues("booked_seats", "miss").Inc()
	}

	count, err := s.Store.CountBookings(ctx, eventID)
	if err != nil {
		return 0, err
	}

	if err := s.Cache.SetBookedSeats(ctx, eventID, count, s.cacheTTL); err != nil {
		log.Warn("예약 수 캐시 저장 실패", "error", err)
	}
	return count, nil
}

func (s *BookingService) markBooked(ctx context.Context, log *slog.Logger, eventID uint, userID string) {
	if err := s.Cache.SetUserBooking(ctx, eventID, userID, s.cacheTTL); err != nil {
		log.Warn("예약 마커 저장 실패", "error", err)
	}
}

func (s *BookingService) invalidateEvent(ctx context.Context, log *slog.Logger, eventID uint) {
	if err := s.Cache.InvalidateEvent(ctx, eventID); err != nil {
		log.Warn("이벤트 캐시 무효화 실패", "error", err)
	}
}

// unlock 요청 컨텍스트가 취소돼도 락은 반납해야 하므로 취소 신호를 끊습니다.
func (s *BookingService) unlock(ctx context.Context, log *slog.Logger, key string) {
	if err := s.Cache.Unlock(context.WithoutCancel(ctx), key); err != nil {
		// TTL 이 지나면 자동 해제됩니다.
		log.Error("락 반납 실패", "lock_key", key, "error", err)
	}
}

func (s *BookingService) internal(log *slog.Logger, msg string, err error) ReservationResult {
	log.Error(msg, "error", err)
	return rejected(ReasonInternal)
}
