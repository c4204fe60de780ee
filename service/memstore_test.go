package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"booking-system/repository"
)

// memStore 테스트용 BookingRepository. 유니크 제약과 정원 잠금을 DB 와 같은 규칙으로 흉내냅니다.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	events   map[uint]repository.Event
	bookings map[uint]repository.Booking
	nextID   uint

	hideBookings  bool
	staleCount    *int
	insertErr     error
	panicOnInsert bool
	insertCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[uint]repository.Event{},
		bookings: map[uint]repository.Booking{},
		nextID:   1,
	}
}

func (s *memStore) addEvent(id uint, name string, seats int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = repository.Event{ID: id, Name: name, TotalSeats: seats, CreatedAt: time.Now()}
}

func (s *memStore) addBooking(eventID uint, userID string) repository.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := repository.Booking{ID: s.nextID, EventID: eventID, UserID: userID, CreatedAt: time.Now()}
	s.bookings[b.ID] = b
	s.nextID++
	return b
}

func (s *memStore) countLocked(eventID uint) int {
	n := 0
	for _, b := range s.bookings {
		if b.EventID == eventID {
			n++
		}
	}
	return n
}

func (s *memStore) bookedCount(eventID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(eventID)
}

func (s *memStore) GetEventWithCount(_ context.Context, eventID uint) (*repository.EventWithCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.EventWithCount{
		ID:          e.ID,
		Name:        e.Name,
		TotalSeats:  e.TotalSeats,
		CreatedAt:   e.CreatedAt,
		BookedSeats: s.countLocked(eventID),
	}, nil
}

func (s *memStore) GetBooking(_ context.Context, eventID uint, userID string) (*repository.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideBookings {
		return nil, repository.ErrNotFound
	}
	for _, b := range s.bookings {
		if b.EventID == eventID && b.UserID == userID {
			found := b
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) CountBookings(_ context.Context, eventID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleCount != nil {
		return *s.staleCount, nil
	}
	return s.countLocked(eventID), nil
}

func (s *memStore) InsertBooking(_ context.Context, eventID uint, userID string) (*repository.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++

	if s.panicOnInsert {
		panic("insert exploded")
	}
	if s.insertErr != nil {
		return nil, s.insertErr
	}

	e, ok := s.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, b := range s.bookings {
		if b.EventID == eventID && b.UserID == userID {
			return nil, repository.ErrDuplicateBooking
		}
	}
	if s.countLocked(eventID) >= e.TotalSeats {
		return nil, repository.ErrCapacityExceeded
	}

	b := repository.Booking{ID: s.nextID, EventID: eventID, UserID: userID, CreatedAt: time.Now()}
	s.bookings[b.ID] = b
	s.nextID++
	return &b, nil
}

func (s *memStore) DeleteBooking(_ context.Context, bookingID uint, userID string) (uint, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok || b.UserID != userID {
		return 0, 0, nil
	}
	delete(s.bookings, bookingID)
	return b.EventID, 1, nil
}

func (s *memStore) ListUserBookings(_ context.Context, userID string) ([]repository.UserBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.UserBooking
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		out = append(out, repository.UserBooking{
			ID:        b.ID,
			EventID:   b.EventID,
			UserID:    b.UserID,
			CreatedAt: b.CreatedAt,
			EventName: s.events[b.EventID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// WithinTx 트랜잭션끼리는 직렬화하고, fn 이 실패하면 예약 스냅샷으로 되돌립니다.
func (s *memStore) WithinTx(_ context.Context, fn func(tx repository.BookingRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[uint]repository.Booking, len(s.bookings))
	for id, b := range s.bookings {
		snapshot[id] = b
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.bookings = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// mockCache 캐시 장애 시나리오용
type mockCache struct {
	mock.Mock
}

func (m *mockCache) HasUserBooking(ctx context.Context, eventID uint, userID string) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) SetUserBooking(ctx context.Context, eventID uint, userID string, ttl time.Duration) error {
	args := m.Called(ctx, eventID, userID, ttl)
	return args.Error(0)
}

func (m *mockCache) RemoveUserBooking(ctx context.Context, eventID uint, userID string) error {
	args := m.Called(ctx, eventID, userID)
	return args.Error(0)
}

func (m *mockCache) GetBookedSeats(ctx context.Context, eventID uint) (int, bool, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *mockCache) SetBookedSeats(ctx context.Context, eventID uint, count int, ttl time.Duration) error {
	args := m.Called(ctx, eventID, count, ttl)
	return args.Error(0)
}

func (m *mockCache) InvalidateEvent(ctx context.Context, eventID uint) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *mockCache) Lock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Unlock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// mockQueue 비동기 발행 검증용
type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) PublishReservation(ctx context.Context, msg repository.ReservationMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockQueue) Close() error {
	return m.Called().Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRedisService miniredis 위에서 실제 RedisRepository 를 쓰는 서비스
func newRedisService(t *testing.T, store repository.BookingRepository, queue repository.QueueRepository) (*BookingService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { client.Close() })

	svc := NewBookingService(store, repository.NewRedisRepository(client), queue, Options{
		Logger: discardLogger(),
	})
	return svc, mr
}
