package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/internal/store"
	"github.com/rainwatch/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// --- Principal repository ---

// memoryPrincipalRepo implements PrincipalRepository in memory. The fn
// fields override individual operations.
type memoryPrincipalRepo struct {
	mu         sync.Mutex
	byID       map[string]types.Principal
	getByIDFn  func(ctx context.Context, id string) (types.Principal, error)
	createFn   func(ctx context.Context, p types.Principal) (types.Principal, error)
	updatePwFn func(ctx context.Context, id, hash string) error
}

func newMemoryPrincipalRepo() *memoryPrincipalRepo {
	return &memoryPrincipalRepo{byID: map[string]types.Principal{}}
}

func (m *memoryPrincipalRepo) GetByID(ctx context.Context, id string) (types.Principal, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return types.Principal{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memoryPrincipalRepo) GetByIdentity(ctx context.Context, identity string) (types.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Identity == identity {
			return p, nil
		}
	}
	return types.Principal{}, store.ErrNotFound
}

func (m *memoryPrincipalRepo) Create(ctx context.Context, p types.Principal) (types.Principal, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Identity == p.Identity {
			return types.Principal{}, store.ErrConflict
		}
	}
	m.byID[p.ID] = p
	return p, nil
}

func (m *memoryPrincipalRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	if m.updatePwFn != nil {
		return m.updatePwFn(ctx, id, hash)
	}
	return m.update(id, func(p *types.Principal) { p.PasswordHash = hash })
}

func (m *memoryPrincipalRepo) UpdateProfile(ctx context.Context, id, identity, fullName string) error {
	m.mu.Lock()
	for otherID, other := range m.byID {
		if otherID != id && other.Identity == identity {
			m.mu.Unlock()
			return store.ErrConflict
		}
	}
	m.mu.Unlock()
	return m.update(id, func(p *types.Principal) {
		p.Identity = identity
		p.FullName = fullName
	})
}

func (m *memoryPrincipalRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return m.update(id, func(p *types.Principal) { p.LastActiveAt = &at })
}

func (m *memoryPrincipalRepo) SetActive(ctx context.Context, id string, active bool) error {
	return m.update(id, func(p *types.Principal) { p.IsActive = active })
}

func (m *memoryPrincipalRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memoryPrincipalRepo) List(ctx context.Context, offset, limit int) ([]types.Principal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Principal, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryPrincipalRepo) update(id string, mutate func(p *types.Principal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	mutate(&p)
	m.byID[id] = p
	return nil
}

// --- Prediction repository ---

// memoryPredictionRepo emulates the upsert keyed by principal, area and day.
type memoryPredictionRepo struct {
	mu       sync.Mutex
	records  []types.PredictionRecord
	upsertFn func(ctx context.Context, record types.PredictionRecord) (types.PredictionRecord, error)
}

func (m *memoryPredictionRepo) Upsert(ctx context.Context, record types.PredictionRecord) (types.PredictionRecord, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.records {
		if existing.PrincipalID == record.PrincipalID && existing.Area == record.Area && existing.DayBucket.Equal(record.DayBucket) {
			record.ID = existing.ID
			m.records[i] = record
			return record, nil
		}
	}
	m.records = append(m.records, record)
	return record, nil
}

func (m *memoryPredictionRepo) ListByPrincipal(ctx context.Context, principalID string) ([]types.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.PredictionRecord
	for _, r := range m.records {
		if r.PrincipalID == principalID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryPredictionRepo) DeleteOwned(ctx context.Context, principalID, id string) (types.PredictionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == id && r.PrincipalID == principalID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return r, nil
		}
	}
	return types.PredictionRecord{}, store.ErrNotFound
}

// --- Event publisher ---

type mockPublisher struct {
	mu        sync.Mutex
	published []types.PredictionRecord
	deleted   []types.PredictionRecord
	err       error
}

func (m *mockPublisher) PublishPredictionStored(ctx context.Context, record types.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, record)
	return nil
}

func (m *mockPublisher) PublishPredictionDeleted(ctx context.Context, record types.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, record)
	return nil
}

// --- Helpers ---

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestHasher(t *testing.T) *BcryptHasher {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost, 4)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func newTestLockoutStore(t *testing.T, realm types.Realm) (*store.RedisLockoutStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewRedisLockoutStore(rdb, realm), mr
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected code %s, got %s (%s)", expectedCode, appErr.Code, appErr.Message)
	}
}
