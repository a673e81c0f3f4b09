package services

import (
	"context"
	"testing"
	"time"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
)

func newTestLockout(t *testing.T, threshold int) (*LockoutService, *fakeClock) {
	t.Helper()
	st, _ := newTestLockoutStore(t, types.RealmUser)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewLockoutService(st, LockoutPolicy{Threshold: threshold, Duration: 15 * time.Minute, AttemptTTL: 24 * time.Hour})
	svc.now = clock.now
	return svc, clock
}

func TestRecordFailure_IncrementsByOne(t *testing.T) {
	svc, _ := newTestLockout(t, 5)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := svc.RecordFailure(ctx, "foo@bar.com")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
	if err := svc.Check(ctx, "foo@bar.com"); err != nil {
		t.Fatalf("expected no lock below threshold: %v", err)
	}
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	svc, _ := newTestLockout(t, 5)
	ctx := context.Background()

	svc.RecordFailure(ctx, "foo@bar.com")
	svc.RecordFailure(ctx, "foo@bar.com")
	if err := svc.RecordSuccess(ctx, "foo@bar.com"); err != nil {
		t.Fatalf("record success: %v", err)
	}

	count, err := svc.Attempts(ctx, "foo@bar.com")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestCheck_LocksAtThreshold(t *testing.T) {
	svc, clock := newTestLockout(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.RecordFailure(ctx, "foo@bar.com")
	}

	err := svc.Check(ctx, "foo@bar.com")
	assertAppError(t, err, apperror.CodeLocked)
	want := clock.t.Add(15 * time.Minute)
	if got := apperror.From(err).RetryAfter; !got.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, got)
	}

	clock.advance(14 * time.Minute)
	assertAppError(t, svc.Check(ctx, "foo@bar.com"), apperror.CodeLocked)
}

func TestCheck_ExpiredLockIsCleared(t *testing.T) {
	svc, clock := newTestLockout(t, 2)
	ctx := context.Background()

	svc.RecordFailure(ctx, "foo@bar.com")
	svc.RecordFailure(ctx, "foo@bar.com")
	assertAppError(t, svc.Check(ctx, "foo@bar.com"), apperror.CodeLocked)

	// The redis key is still present; only the clock has moved.
	clock.advance(15 * time.Minute)
	if err := svc.Check(ctx, "foo@bar.com"); err != nil {
		t.Fatalf("expected expired lock to clear: %v", err)
	}
	if count, _ := svc.Attempts(ctx, "foo@bar.com"); count != 0 {
		t.Fatalf("expected counter reset with lock, got %d", count)
	}
}

func TestCheck_IdentitiesAreIndependent(t *testing.T) {
	svc, _ := newTestLockout(t, 1)
	ctx := context.Background()

	svc.RecordFailure(ctx, "a@bar.com")
	assertAppError(t, svc.Check(ctx, "a@bar.com"), apperror.CodeLocked)
	if err := svc.Check(ctx, "b@bar.com"); err != nil {
		t.Fatalf("expected other identity unlocked: %v", err)
	}
}
