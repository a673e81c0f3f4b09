package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/internal/store"
	"github.com/rainwatch/apiserver/types"
	"github.com/segmentio/ksuid"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// PrincipalRepository defines persistence operations for one realm's principals.
type PrincipalRepository interface {
	GetByID(ctx context.Context, id string) (types.Principal, error)
	GetByIdentity(ctx context.Context, identity string) (types.Principal, error)
	Create(ctx context.Context, principal types.Principal) (types.Principal, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id, identity, fullName string) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]types.Principal, int, error)
}

type RegisterInput struct {
	Identity string
	FullName string
	Password string
}

// ProfileInput carries the editable profile fields. An empty FullName keeps
// the stored one.
type ProfileInput struct {
	Identity string
	FullName string
}

// CredentialService registers and verifies the principals of a single realm.
type CredentialService struct {
	realm  types.Realm
	repo   PrincipalRepository
	hasher PasswordHasher
	now    func() time.Time
	newID  func() string
}

func NewCredentialService(realm types.Realm, repo PrincipalRepository, hasher PasswordHasher) *CredentialService {
	return &CredentialService{
		realm:  realm,
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
		newID:  func() string { return ksuid.New().String() },
	}
}

func (s *CredentialService) Realm() types.Realm {
	return s.realm
}

// NormalizeIdentity trims and lower-cases an email identity.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func validateIdentity(identity string) error {
	at := strings.Index(identity, "@")
	if at < 0 || !strings.Contains(identity[at+1:], ".") {
		return apperror.NewValidation("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.NewValidation("password must be at least 8 characters long")
	}
	if len(password) > maxPasswordBytes {
		return apperror.NewValidation("password must be at most 72 bytes long")
	}
	return nil
}

// Register creates a principal. A normalized identity already present in the
// realm yields a conflict error.
func (s *CredentialService) Register(ctx context.Context, input RegisterInput) (types.Principal, error) {
	identity := NormalizeIdentity(input.Identity)
	if err := validateIdentity(identity); err != nil {
		return types.Principal{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return types.Principal{}, err
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return types.Principal{}, apperror.NewInternal(err)
	}

	principal, err := s.repo.Create(ctx, types.Principal{
		ID:           s.newID(),
		Identity:     identity,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: hash,
		Role:         s.realm,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Principal{}, apperror.NewConflict("email already registered")
		}
		return types.Principal{}, apperror.NewStorage(err)
	}
	return principal, nil
}

// Verify checks a password against the stored hash and records the login
// time on success.
func (s *CredentialService) Verify(ctx context.Context, identity, password string) (types.Principal, error) {
	identity = NormalizeIdentity(identity)

	principal, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.CompareDummy(ctx, password)
			return types.Principal{}, apperror.NewInvalidCredentials()
		}
		return types.Principal{}, apperror.NewStorage(err)
	}

	if err := s.hasher.Compare(ctx, principal.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return types.Principal{}, apperror.NewInvalidCredentials()
		}
		return types.Principal{}, apperror.NewInternal(err)
	}

	if !principal.IsActive {
		return types.Principal{}, apperror.NewInactive()
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastActive(ctx, principal.ID, now); err != nil {
		return types.Principal{}, apperror.NewStorage(err)
	}
	principal.LastActiveAt = &now
	return principal, nil
}

// FindActive returns the principal with the given id when it still carries
// identity and is active.
func (s *CredentialService) FindActive(ctx context.Context, principalID, identity string) (types.Principal, error) {
	principal, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Principal{}, apperror.NewNotFound("principal not found")
		}
		return types.Principal{}, apperror.NewStorage(err)
	}
	if principal.Identity != NormalizeIdentity(identity) || !principal.IsActive {
		return types.Principal{}, apperror.NewNotFound("principal not found")
	}
	return principal, nil
}

// ChangePassword replaces the hash after confirming the current password.
func (s *CredentialService) ChangePassword(ctx context.Context, principalID, current, next string) error {
	principal, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NewNotFound("principal not found")
		}
		return apperror.NewStorage(err)
	}

	if err := s.hasher.Compare(ctx, principal.PasswordHash, current); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return apperror.NewInvalidCredentials()
		}
		return apperror.NewInternal(err)
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if err := s.repo.UpdatePassword(ctx, principal.ID, hash); err != nil {
		return apperror.NewStorage(err)
	}
	return nil
}

// UpdateProfile changes a principal's identity and full name. An identity
// already used by another principal of the realm yields a conflict error.
func (s *CredentialService) UpdateProfile(ctx context.Context, principalID string, input ProfileInput) (types.Principal, error) {
	identity := NormalizeIdentity(input.Identity)
	if identity == "" {
		return types.Principal{}, apperror.NewValidation("email is required")
	}
	if err := validateIdentity(identity); err != nil {
		return types.Principal{}, err
	}

	principal, err := s.repo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Principal{}, apperror.NewNotFound("principal not found")
		}
		return types.Principal{}, apperror.NewStorage(err)
	}

	if fullName := strings.TrimSpace(input.FullName); fullName != "" {
		principal.FullName = fullName
	}
	principal.Identity = identity

	if err := s.repo.UpdateProfile(ctx, principal.ID, principal.Identity, principal.FullName); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return types.Principal{}, apperror.NewConflict("email already in use")
		case errors.Is(err, store.ErrNotFound):
			return types.Principal{}, apperror.NewNotFound("principal not found")
		}
		return types.Principal{}, apperror.NewStorage(err)
	}
	return principal, nil
}

func (s *CredentialService) SetActive(ctx context.Context, principalID string, active bool) error {
	if err := s.repo.SetActive(ctx, principalID, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NewNotFound("principal not found")
		}
		return apperror.NewStorage(err)
	}
	return nil
}

// Delete removes a principal. Records referencing it are left in place.
func (s *CredentialService) Delete(ctx context.Context, principalID string) error {
	if err := s.repo.Delete(ctx, principalID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NewNotFound("principal not found")
		}
		return apperror.NewStorage(err)
	}
	return nil
}

func (s *CredentialService) List(ctx context.Context, offset, limit int) ([]types.Principal, int, error) {
	principals, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, apperror.NewStorage(err)
	}
	return principals, total, nil
}
