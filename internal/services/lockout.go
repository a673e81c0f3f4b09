package services

import (
	"context"
	"time"

	"github.com/rainwatch/apiserver/internal/apperror"
)

// LockoutStore is the atomic counter and lock storage behind LockoutService.
type LockoutStore interface {
	Increment(ctx context.Context, identity string, idleTTL time.Duration) (int, error)
	Lock(ctx context.Context, identity string, until time.Time, ttl time.Duration) error
	LockedUntil(ctx context.Context, identity string) (time.Time, bool, error)
	Attempts(ctx context.Context, identity string) (int, error)
	Clear(ctx context.Context, identity string) error
}

type LockoutPolicy struct {
	// Threshold is the number of consecutive failures that creates a lock.
	Threshold int
	// Duration is how long a lock lasts.
	Duration time.Duration
	// AttemptTTL expires an idle failure counter.
	AttemptTTL time.Duration
}

// LockoutService tracks consecutive failed logins per identity and locks the
// identity once the threshold is reached.
type LockoutService struct {
	store  LockoutStore
	policy LockoutPolicy
	now    func() time.Time
}

func NewLockoutService(store LockoutStore, policy LockoutPolicy) *LockoutService {
	if policy.Threshold < 1 {
		policy.Threshold = 5
	}
	if policy.Duration <= 0 {
		policy.Duration = 15 * time.Minute
	}
	return &LockoutService{store: store, policy: policy, now: time.Now}
}

// Check fails with an account_locked error while a lock is active. A lock
// whose time has passed is cleared along with the counter.
func (s *LockoutService) Check(ctx context.Context, identity string) error {
	until, locked, err := s.store.LockedUntil(ctx, identity)
	if err != nil {
		return apperror.NewStorage(err)
	}
	if !locked {
		return nil
	}
	if s.now().Before(until) {
		return apperror.NewLocked(until)
	}
	if err := s.store.Clear(ctx, identity); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// RecordFailure counts one failed attempt and returns the new count.
func (s *LockoutService) RecordFailure(ctx context.Context, identity string) (int, error) {
	count, err := s.store.Increment(ctx, identity, s.policy.AttemptTTL)
	if err != nil {
		return 0, apperror.NewStorage(err)
	}
	if count >= s.policy.Threshold {
		until := s.now().Add(s.policy.Duration)
		if err := s.store.Lock(ctx, identity, until, s.policy.Duration); err != nil {
			return count, apperror.NewStorage(err)
		}
	}
	return count, nil
}

// RecordSuccess resets the counter.
func (s *LockoutService) RecordSuccess(ctx context.Context, identity string) error {
	if err := s.store.Clear(ctx, identity); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

func (s *LockoutService) Attempts(ctx context.Context, identity string) (int, error) {
	count, err := s.store.Attempts(ctx, identity)
	if err != nil {
		return 0, apperror.NewStorage(err)
	}
	return count, nil
}
