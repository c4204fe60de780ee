package repository

import "time"

// Event 공연/행사 모델. 잔여석은 저장하지 않고 bookings 행 수로 계산합니다.
type Event struct {
	ID         uint      `gorm:"primaryKey" db:"id" json:"id"`
	Name       string    `gorm:"size:255;not null" db:"name" json:"name"`
	TotalSeats int       `gorm:"column:total_seats;not null" db:"total_seats" json:"total_seats"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at" json:"created_at"`
	Bookings   []Booking `gorm:"constraint:OnDelete:CASCADE" db:"-" json:"-"`
}

func (Event) TableName() string {
	return "events"
}

// Booking 예약 내역 모델. (event_id, user_id) 쌍은 DB 유니크 제약으로 1건만 허용됩니다.
type Booking struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" db:"id" json:"id"`
	EventID   uint      `gorm:"column:event_id;not null;uniqueIndex:idx_bookings_event_user;index:idx_bookings_event_id" db:"event_id" json:"event_id"`
	UserID    string    `gorm:"column:user_id;size:255;not null;uniqueIndex:idx_bookings_event_user" db:"user_id" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_bookings_created_at" db:"created_at" json:"created_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

// EventWithCount 이벤트 + 현재 예약 수 (조회 시 집계)
type EventWithCount struct {
	ID          uint      `gorm:"column:id" db:"id" json:"id"`
	Name        string    `gorm:"column:name" db:"name" json:"name"`
	TotalSeats  int       `gorm:"column:total_seats" db:"total_seats" json:"total_seats"`
	CreatedAt   time.Time `gorm:"column:created_at" db:"created_at" json:"created_at"`
	BookedSeats int       `gorm:"column:booked_seats" db:"booked_seats" json:"booked_seats"`
}

func (e EventWithCount) AvailableSeats() int {
	if e.BookedSeats >= e.TotalSeats {
		return 0
	}
	return e.TotalSeats - e.BookedSeats
}

// UserBooking 사용자 예약 목록 조회용 (이벤트명 포함)
type UserBooking struct {
	ID        uint      `gorm:"column:id" db:"id" json:"id"`
	EventID   uint      `gorm:"column:event_id" db:"event_id" json:"event_id"`
	UserID    string    `gorm:"column:user_id" db:"user_id" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at" db:"created_at" json:"created_at"`
	EventName string    `gorm:"column:event_name" db:"event_name" json:"event_name"`
}

// ReservationMessage 비동기 예약 큐로 전달되는 메시지
type ReservationMessage struct {
	RequestID string    `json:"request_id"`
	EventID   uint      `json:"event_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}
