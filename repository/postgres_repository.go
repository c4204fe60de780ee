package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		total_seats INTEGER NOT NULL CHECK (total_seats > 0),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id SERIAL PRIMARY KEY,
		event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT idx_bookings_event_user UNIQUE (event_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_event_id ON bookings(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at)`,
}

// PostgresRepository sqlx 기반 BookingRepository 구현.
// db 가 nil 이면 이미 트랜잭션 안에서 만들어진 인스턴스입니다.
type PostgresRepository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, q: db}
}

func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) CreateEvent(ctx context.Context, name string, totalSeats int) (*Event, error) {
	var event Event
	err := r.q.QueryRowxContext(ctx,
		`INSERT INTO events (name, total_seats) VALUES ($1, $2)
		 RETURNING id, name, total_seats, created_at`,
		name, totalSeats,
	).StructScan(&event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *PostgresRepository) GetEventWithCount(ctx context.Context, eventID uint) (*EventWithCount, error) {
	var event EventWithCount
	err := sqlx.GetContext(ctx, r.q, &event,
		`SELECT e.id, e.name, e.total_seats, e.created_at, COUNT(b.id) AS booked_seats
		 FROM events e
		 LEFT JOIN bookings b ON b.event_id = e.id
		 WHERE e.id = $1
		 GROUP BY e.id`,
		eventID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *PostgresRepository) GetBooking(ctx context.Context, eventID uint, userID string) (*Booking, error) {
	var booking Booking
	err := sqlx.GetContext(ctx, r.q, &booking,
		`SELECT id, event_id, user_id, created_at FROM bookings WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *PostgresRepository) CountBookings(ctx context.Context, eventID uint) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM bookings WHERE event_id = $1`, eventID)
	return count, err
}

// InsertBooking 이벤트 행 잠금(FOR UPDATE) → 정원 확인 → INSERT 를 한 트랜잭션에서 수행합니다.
func (r *PostgresRepository) InsertBooking(ctx context.Context, eventID uint, userID string) (*Booking, error) {
	var booking Booking

	err := r.WithinTx(ctx, func(tx BookingRepository) error {
		q := tx.(*PostgresRepository).q

		var totalSeats int
		err := sqlx.GetContext(ctx, q, &totalSeats, `SELECT total_seats FROM events WHERE id = $1 FOR UPDATE`, eventID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var booked int
		if err := sqlx.GetContext(ctx, q, &booked, `SELECT COUNT(*) FROM bookings WHERE event_id = $1`, eventID); err != nil {
			return err
		}
		if booked >= totalSeats {
			return ErrCapacityExceeded
		}

		return q.QueryRowxContext(ctx,
			`INSERT INTO bookings (event_id, user_id) VALUES ($1, $2)
			 RETURNING id, event_id, user_id, created_at`,
			eventID, userID,
		).StructScan(&booking)
	})

	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateBooking
		}
		return nil, err
	}
	return &booking, nil
}

func (r *PostgresRepository) DeleteBooking(ctx context.Context, bookingID uint, userID string) (uint, int64, error) {
	var eventIDs []uint
	err := sqlx.SelectContext(ctx, r.q, &eventIDs,
		`DELETE FROM bookings WHERE id = $1 AND user_id = $2 RETURNING event_id`,
		bookingID, userID,
	)
	if err != nil {
		return 0, 0, err
	}
	if len(eventIDs) == 0 {
		return 0, 0, nil
	}
	return eventIDs[0], int64(len(eventIDs)), nil
}

func (r *PostgresRepository) ListUserBookings(ctx context.Context, userID string) ([]UserBooking, error) {
	bookings := []UserBooking{}
	err := sqlx.SelectContext(ctx, r.q, &bookings,
		`SELECT b.id, b.event_id, b.user_id, b.created_at, e.name AS event_name
		 FROM bookings b
		 JOIN events e ON e.id = b.event_id
		 WHERE b.user_id = $1
		 ORDER BY b.created_at DESC`,
		userID,
	)
	return bookings, err
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx BookingRepository) error) (err error) {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&PostgresRepository{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (r *PostgresRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}
