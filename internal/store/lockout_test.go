package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rainwatch/apiserver/types"
)

func newTestLockoutStore(t *testing.T, realm types.Realm) (*RedisLockoutStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLockoutStore(rdb, realm), mr
}

func TestIncrement_CountsByOne(t *testing.T) {
	s, _ := newTestLockoutStore(t, types.RealmUser)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := s.Increment(ctx, "a@b.co", time.Hour)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	attempts, err := s.Attempts(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestIncrement_IdleCounterExpires(t *testing.T) {
	s, mr := newTestLockoutStore(t, types.RealmUser)
	ctx := context.Background()

	if _, err := s.Increment(ctx, "a@b.co", time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	mr.FastForward(time.Hour + time.Second)

	attempts, err := s.Attempts(ctx, "a@b.co")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected counter to expire, got %d", attempts)
	}
}

func TestLock_ExpiresWithCounter(t *testing.T) {
	s, mr := newTestLockoutStore(t, types.RealmUser)
	ctx := context.Background()

	if _, err := s.Increment(ctx, "a@b.co", 24*time.Hour); err != nil {
		t.Fatalf("increment: %v", err)
	}
	until := time.Now().Add(15 * time.Minute).UTC()
	if err := s.Lock(ctx, "a@b.co", until, 15*time.Minute); err != nil {
		t.Fatalf("lock: %v", err)
	}

	got, ok, err := s.LockedUntil(ctx, "a@b.co")
	if err != nil || !ok {
		t.Fatalf("expected lock, ok=%v err=%v", ok, err)
	}
	if !got.Equal(until) {
		t.Fatalf("expected %v, got %v", until, got)
	}

	mr.FastForward(15*time.Minute + time.Second)

	if _, ok, _ := s.LockedUntil(ctx, "a@b.co"); ok {
		t.Fatal("expected lock to expire")
	}
	if attempts, _ := s.Attempts(ctx, "a@b.co"); attempts != 0 {
		t.Fatalf("expected counter to expire with lock, got %d", attempts)
	}
}

func TestClear_RemovesCounterAndLock(t *testing.T) {
	s, _ := newTestLockoutStore(t, types.RealmUser)
	ctx := context.Background()

	s.Increment(ctx, "a@b.co", time.Hour)
	s.Lock(ctx, "a@b.co", time.Now().Add(time.Minute), time.Minute)

	if err := s.Clear(ctx, "a@b.co"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.LockedUntil(ctx, "a@b.co"); ok {
		t.Fatal("expected no lock after clear")
	}
	if attempts, _ := s.Attempts(ctx, "a@b.co"); attempts != 0 {
		t.Fatalf("expected 0 attempts after clear, got %d", attempts)
	}
}

func TestRealmsDoNotShareKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	users := NewRedisLockoutStore(rdb, types.RealmUser)
	admins := NewRedisLockoutStore(rdb, types.RealmAdmin)

	users.Increment(ctx, "same@b.co", time.Hour)
	users.Increment(ctx, "same@b.co", time.Hour)

	if attempts, _ := admins.Attempts(ctx, "same@b.co"); attempts != 0 {
		t.Fatalf("admin realm saw user failures: %d", attempts)
	}
}
