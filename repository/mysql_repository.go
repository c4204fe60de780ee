package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type MySQLRepository struct {
	DB *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{
		DB: db,
	}
}

// OpenMySQL GORM 연결 + 커넥션 풀 설정
func OpenMySQL(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func (r *MySQLRepository) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&Event{}, &Booking{})
}

func (r *MySQLRepository) CreateEvent(ctx context.Context, name string, totalSeats int) (*Event, error) {
	event := &Event{Name: name, TotalSeats: totalSeats}
	if err := r.DB.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// GetEventWithCount 이벤트와 현재 예약 수를 한 번의 쿼리(LEFT JOIN + COUNT)로 조회
func (r *MySQLRepository) GetEventWithCount(ctx context.Context, eventID uint) (*EventWithCount, error) {
	var event EventWithCount
	result := r.DB.WithContext(ctx).
		Table("events AS e").
		Select("e.id, e.name, e.total_seats, e.created_at, COUNT(b.id) AS booked_seats").
		Joins("LEFT JOIN bookings b ON b.event_id = e.id").
		Where("e.id = ?", eventID).
		Group("e.id, e.name, e.total_seats, e.created_at").
		Scan(&event)

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &event, nil
}

func (r *MySQLRepository) GetBooking(ctx context.Context, eventID uint, userID string) (*Booking, error) {
	var booking Booking
	err := r.DB.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Take(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *MySQLRepository) CountBookings(ctx context.Context, eventID uint) (int, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&Booking{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return int(count), err
}

// InsertBooking 이벤트 행을 FOR UPDATE 로 잠근 뒤 정원을 다시 확인하고 저장합니다.
// 서로 다른 유저가 마지막 좌석을 동시에 노려도 초과 예약이 생기지 않습니다.
func (r *MySQLRepository) InsertBooking(ctx context.Context, eventID uint, userID string) (*Booking, error) {
	booking := &Booking{EventID: eventID, UserID: userID}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event Event
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "total_seats").
			Where("id = ?", eventID).
			Take(&event).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var booked int64
		if err := tx.Model(&Booking{}).Where("event_id = ?", eventID).Count(&booked).Error; err != nil {
			return err
		}
		if int(booked) >= event.TotalSeats {
			return ErrCapacityExceeded
		}

		return tx.Create(booking).Error
	})

	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateBooking
		}
		return nil, err
	}
	return booking, nil
}

// DeleteBooking id 와 user_id 가 모두 일치하는 행만 삭제합니다 (소유권 확인이 삭제 조건에 포함됨).
// MySQL 에는 RETURNING 이 없으므로 같은 트랜잭션에서 event_id 를 먼저 잠가서 읽습니다.
func (r *MySQLRepository) DeleteBooking(ctx context.Context, bookingID uint, userID string) (uint, int64, error) {
	var (
		eventID  uint
		affected int64
	)

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "event_id").
			Where("id = ? AND user_id = ?", bookingID, userID).
			Take(&booking).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result := tx.Where("id = ? AND user_id = ?", bookingID, userID).Delete(&Booking{})
		if result.Error != nil {
			return result.Error
		}

		eventID = booking.EventID
		affected = result.RowsAffected
		return nil
	})

	return eventID, affected, err
}

func (r *MySQLRepository) ListUserBookings(ctx context.Context, userID string) ([]UserBooking, error) {
	var bookings []UserBooking
	err := r.DB.WithContext(ctx).
		Table("bookings AS b").
		Select("b.id, b.event_id, b.user_id, b.created_at, e.name AS event_name").
		Joins("JOIN events e ON e.id = b.event_id").
		Where("b.user_id = ?", userID).
		Order("b.created_at DESC").
		Scan(&bookings).Error
	return bookings, err
}

// WithinTx 중첩 호출 시 GORM 이 SAVEPOINT 로 처리합니다.
func (r *MySQLRepository) WithinTx(ctx context.Context, fn func(tx BookingRepository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MySQLRepository{DB: tx})
	})
}

func (r *MySQLRepository) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *MySQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
