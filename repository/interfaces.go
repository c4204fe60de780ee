package repository

import (
	"context"
	"time"
)

/*
 * CacheRepository Interface
 * Redis 기반의 빠른 경로(Fast-Path) 캐시와 분산 락을 담당합니다.
 * 캐시는 힌트일 뿐이며, 최종 판단은 항상 BookingRepository(DB)가 합니다.
 */

type CacheRepository interface {
	// User Booking Marker
	HasUserBooking(ctx context.Context, eventID uint, userID string) (bool, error)
	SetUserBooking(ctx context.Context, eventID uint, userID string, ttl time.Duration) error
	RemoveUserBooking(ctx context.Context, eventID uint, userID string) error

	// Booked Seats Snapshot
	GetBookedSeats(ctx context.Context, eventID uint) (int, bool, error)
	SetBookedSeats(ctx context.Context, eventID uint, count int, ttl time.Duration) error
	InvalidateEvent(ctx context.Context, eventID uint) error

	// Distributed Locking
	Lock(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

/*
 * BookingRepository Interface
 * 이벤트와 예약 내역을 RDBMS(MySQL/PostgreSQL)에 저장하는 역할을 담당합니다.
 * 없는 행은 ErrNotFound, (event_id, user_id) 중복은 ErrDuplicateBooking,
 * 정원 초과는 ErrCapacityExceeded 로 반환합니다.
 */

type BookingRepository interface {
	GetEventWithCount(ctx context.Context, eventID uint) (*EventWithCount, error)
	GetBooking(ctx context.Context, eventID uint, userID string) (*Booking, error)
	CountBookings(ctx context.Context, eventID uint) (int, error)
	InsertBooking(ctx context.Context, eventID uint, userID string) (*Booking, error)
	DeleteBooking(ctx context.Context, bookingID uint, userID string) (eventID uint, affected int64, err error)
	ListUserBookings(ctx context.Context, userID string) ([]UserBooking, error)

	// WithinTx fn 전체를 하나의 트랜잭션으로 실행합니다. fn 이 에러를 반환하면 롤백됩니다.
	WithinTx(ctx context.Context, fn func(tx BookingRepository) error) error
}

// SchemaRepository 운영 도구(bookingctl)용 스키마/시드 작업
type SchemaRepository interface {
	Migrate(ctx context.Context) error
	CreateEvent(ctx context.Context, name string, totalSeats int) (*Event, error)
}

// QueueRepository 비동기 예약 요청 발행
type QueueRepository interface {
	PublishReservation(ctx context.Context, msg ReservationMessage) error
	Close() error
}
