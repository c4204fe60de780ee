package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pgLockEvent = `SELECT total_seats FROM events WHERE id = \$1 FOR UPDATE`
	pgCount     = `SELECT COUNT\(\*\) FROM bookings WHERE event_id = \$1`
	pgInsert    = `INSERT INTO bookings \(event_id, user_id\) VALUES \(\$1, \$2\) RETURNING id, event_id, user_id, created_at`
	pgDelete    = `DELETE FROM bookings WHERE id = \$1 AND user_id = \$2 RETURNING event_id`
)

func newMockPostgres(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "postgres")), dbMock
}

func TestPostgresRepository_InsertBooking(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgLockEvent).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"total_seats"}).AddRow(10))
	dbMock.ExpectQuery(pgCount).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	dbMock.ExpectQuery(pgInsert).WithArgs(1, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "user_id", "created_at"}).
			AddRow(11, 1, "u1", time.Now()))
	dbMock.ExpectCommit()

	booking, err := repo.InsertBooking(context.Background(), 1, "u1")

	require.NoError(t, err)
	assert.Equal(t, uint(11), booking.ID)
	assert.Equal(t, uint(1), booking.EventID)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertBookingFullEventRollsBack(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgLockEvent).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"total_seats"}).AddRow(1))
	dbMock.ExpectQuery(pgCount).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	dbMock.ExpectRollback()

	_, err := repo.InsertBooking(context.Background(), 1, "u2")

	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.NoError(t, dbMock.ExpectationsWereMet(), "no INSERT may run once the event is full")
}

func TestPostgresRepository_InsertBookingUniqueViolation(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgLockEvent).
		WillReturnRows(sqlmock.NewRows([]string{"total_seats"}).AddRow(10))
	dbMock.ExpectQuery(pgCount).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	dbMock.ExpectQuery(pgInsert).WithArgs(1, "u1").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_bookings_event_user"})
	dbMock.ExpectRollback()

	_, err := repo.InsertBooking(context.Background(), 1, "u1")

	assert.ErrorIs(t, err, ErrDuplicateBooking)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_InsertBookingMissingEvent(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgLockEvent).WillReturnRows(sqlmock.NewRows([]string{"total_seats"}))
	dbMock.ExpectRollback()

	_, err := repo.InsertBooking(context.Background(), 999, "u1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_GetEventWithCountNotFound(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectQuery(`SELECT e\.id, e\.name, e\.total_seats, e\.created_at, COUNT\(b\.id\) AS booked_seats FROM events e`).
		WithArgs(999).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "total_seats", "created_at", "booked_seats"}))

	_, err := repo.GetEventWithCount(context.Background(), 999)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteBooking(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectQuery(pgDelete).WithArgs(5, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(3))
	dbMock.ExpectQuery(pgDelete).WithArgs(5, "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))

	eventID, affected, err := repo.DeleteBooking(context.Background(), 5, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint(3), eventID)
	assert.Equal(t, int64(1), affected)

	eventID, affected, err = repo.DeleteBooking(context.Background(), 5, "intruder")
	require.NoError(t, err)
	assert.Zero(t, eventID)
	assert.Zero(t, affected)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_WithinTxRollsBackOnError(t *testing.T) {
	repo, dbMock := newMockPostgres(t)
	boom := errors.New("cache invalidation failed")

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgDelete).WithArgs(5, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}).AddRow(3))
	dbMock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(tx BookingRepository) error {
		if _, _, err := tx.DeleteBooking(context.Background(), 5, "u1"); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPostgresRepository_WithinTxReportsRollbackFailure(t *testing.T) {
	repo, dbMock := newMockPostgres(t)
	boom := errors.New("fn failed")
	connLost := errors.New("connection lost")

	dbMock.ExpectBegin()
	dbMock.ExpectRollback().WillReturnError(connLost)

	err := repo.WithinTx(context.Background(), func(tx BookingRepository) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, connLost)
}

func TestPostgresRepository_WithinTxNestedReusesTransaction(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery(pgCount).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	dbMock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(tx BookingRepository) error {
		return tx.WithinTx(context.Background(), func(inner BookingRepository) error {
			n, err := inner.CountBookings(context.Background(), 1)
			assert.Equal(t, 2, n)
			return err
		})
	})

	require.NoError(t, err)
	assert.NoError(t, dbMock.ExpectationsWereMet(), "nested call must not open a second transaction")
}

func TestPostgresRepository_WithinTxRollsBackOnPanic(t *testing.T) {
	repo, dbMock := newMockPostgres(t)

	dbMock.ExpectBegin()
	dbMock.ExpectRollback()

	assert.Panics(t, func() {
		_ = repo.WithinTx(context.Background(), func(tx BookingRepository) error { panic("boom") })
	})
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
