package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

type RedisRepository struct {
	Client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{Client: client}
}

func bookingKey(eventID uint, userID string) string {
	return fmt.Sprintf("booking:%d:%s", eventID, userID)
}

func eventKeyPrefix(eventID uint) string {
	return fmt.Sprintf("event:%d:", eventID)
}

func bookedSeatsKey(eventID uint) string {
	return eventKeyPrefix(eventID) + "booked_seats"
}

// LockKey (event, user) 단위 락 키. 다른 유저/이벤트끼리는 경합하지 않습니다.
func LockKey(eventID uint, userID string) string {
	return fmt.Sprintf("lock:event:%d:user:%s", eventID, userID)
}

// Lock: SetNX를 이용해 열쇠를 획득 시도 (대기하지 않음)
func (r *RedisRepository) Lock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, key, "locked", expiration).Result()
}

// Unlock: 열쇠 반납
func (r *RedisRepository) Unlock(ctx context.Context, key string) error {
	return r.Client.Del(ctx, key).Err()
}

func (r *RedisRepository) HasUserBooking(ctx context.Context, eventID uint, userID string) (bool, error) {
	val, err := r.Client.Get(ctx, bookingKey(eventID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (r *RedisRepository) SetUserBooking(ctx context.Context, eventID uint, userID string, ttl time.Duration) error {
	return r.Client.Set(ctx, bookingKey(eventID, userID), "1", ttl).Err()
}

func (r *RedisRepository) RemoveUserBooking(ctx context.Context, eventID uint, userID string) error {
	return r.Client.Del(ctx, bookingKey(eventID, userID)).Err()
}

// GetBookedSeats 캐시된 예약 수. 키가 없으면 ok=false
func (r *RedisRepository) GetBookedSeats(ctx context.Context, eventID uint) (int, bool, error) {
	val, err := r.Client.Get(ctx, bookedSeatsKey(eventID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (r *RedisRepository) SetBookedSeats(ctx context.Context, eventID uint, count int, ttl time.Duration) error {
	return r.Client.Set(ctx, bookedSeatsKey(eventID), count, ttl).Err()
}

// InvalidateEvent event:{id}:* 키를 모두 삭제합니다. KEYS 대신 SCAN으로 순회합니다.
func (r *RedisRepository) InvalidateEvent(ctx context.Context, eventID uint) error {
	iter := r.Client.Scan(ctx, 0, eventKeyPrefix(eventID)+"*", scanBatchSize).Iterator()

	keys := make([]string, 0, 4)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatchSize {
			if err := r.Client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.Client.Close()
}
