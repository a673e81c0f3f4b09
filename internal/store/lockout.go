package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rainwatch/apiserver/types"
)

// RedisLockoutStore keeps failed-login counters and active locks for one
// realm. Keys:
//
//	lockout:{realm}:attempts:{identity}  consecutive failures (INCR)
//	lockout:{realm}:lock:{identity}      lockedUntil as RFC3339Nano
type RedisLockoutStore struct {
	redis *redis.Client
	realm types.Realm
}

func NewRedisLockoutStore(rdb *redis.Client, realm types.Realm) *RedisLockoutStore {
	return &RedisLockoutStore{redis: rdb, realm: realm}
}

func (s *RedisLockoutStore) attemptsKey(identity string) string {
	return fmt.Sprintf("lockout:%s:attempts:%s", s.realm, identity)
}

func (s *RedisLockoutStore) lockKey(identity string) string {
	return fmt.Sprintf("lockout:%s:lock:%s", s.realm, identity)
}

// Increment adds one failure and returns the new count. The counter expires
// after idleTTL without further failures.
func (s *RedisLockoutStore) Increment(ctx context.Context, identity string, idleTTL time.Duration) (int, error) {
	key := s.attemptsKey(identity)

	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if idleTTL > 0 {
			pipe.PExpire(ctx, key, idleTTL)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return int(incr.Val()), nil
}

// Lock records a lock lifting at until. The lock and the counter both expire
// at until.
func (s *RedisLockoutStore) Lock(ctx context.Context, identity string, until time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.lockKey(identity), until.UTC().Format(time.RFC3339Nano), ttl)
		pipe.PExpire(ctx, s.attemptsKey(identity), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return nil
}

// LockedUntil returns the recorded lock expiry, if a lock exists.
func (s *RedisLockoutStore) LockedUntil(ctx context.Context, identity string) (time.Time, bool, error) {
	value, err := s.redis.Get(ctx, s.lockKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read lock: %w", err)
	}
	until, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse lock: %w", err)
	}
	return until, true, nil
}

func (s *RedisLockoutStore) Attempts(ctx context.Context, identity string) (int, error) {
	count, err := s.redis.Get(ctx, s.attemptsKey(identity)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return count, nil
}

// Clear removes both the counter and any lock.
func (s *RedisLockoutStore) Clear(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.attemptsKey(identity), s.lockKey(identity)).Err(); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}
