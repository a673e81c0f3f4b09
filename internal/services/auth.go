package services

import (
	"context"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

type LoginResult struct {
	Token     string
	Principal types.Principal
}

// AuthService runs the login flow of one realm: lockout check, credential
// verification, counter update and token issue.
type AuthService struct {
	credentials *CredentialService
	lockout     *LockoutService
	tokens      *TokenService
	logger      *zap.Logger
}

func NewAuthService(credentials *CredentialService, lockout *LockoutService, tokens *TokenService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		credentials: credentials,
		lockout:     lockout,
		tokens:      tokens,
		logger:      logger.With(zap.String("realm", string(credentials.Realm()))),
	}
}

func (s *AuthService) Realm() types.Realm {
	return s.credentials.Realm()
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (types.Principal, error) {
	principal, err := s.credentials.Register(ctx, input)
	if err != nil {
		return types.Principal{}, err
	}
	s.logger.Info("principal registered", zap.String("principal_id", principal.ID))
	return principal, nil
}

// ChangePassword replaces the caller's password. A wrong current password
// counts against the same lockout as a failed login, and a locked identity
// cannot change its password.
func (s *AuthService) ChangePassword(ctx context.Context, principal types.Principal, current, next string) error {
	identity := NormalizeIdentity(principal.Identity)
	if err := s.lockout.Check(ctx, identity); err != nil {
		return err
	}

	err := s.credentials.ChangePassword(ctx, principal.ID, current, next)
	if err != nil {
		if !apperror.HasCode(err, apperror.CodeInvalidCredentials) {
			return err
		}
		count, lockErr := s.lockout.RecordFailure(ctx, identity)
		if lockErr != nil {
			s.logger.Error("failed to record password change failure", zap.String("identity", identity), zap.Error(lockErr))
			return lockErr
		}
		s.logger.Info("password change rejected", zap.String("principal_id", principal.ID), zap.Int("failed_attempts", count))
		return err
	}

	if err := s.lockout.RecordSuccess(ctx, identity); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("principal_id", principal.ID))
	return nil
}

// UpdateProfile changes the caller's identity and name. The returned token
// carries the new identity; tokens issued for the old one stop validating.
func (s *AuthService) UpdateProfile(ctx context.Context, principalID string, input ProfileInput) (LoginResult, error) {
	principal, err := s.credentials.UpdateProfile(ctx, principalID, input)
	if err != nil {
		return LoginResult{}, err
	}

	token, err := s.tokens.Issue(principal, s.Realm())
	if err != nil {
		return LoginResult{}, apperror.NewInternal(err)
	}
	s.logger.Info("profile updated", zap.String("principal_id", principal.ID))
	return LoginResult{Token: token, Principal: principal}, nil
}

// Login authenticates identity and returns a signed token. A locked identity
// is rejected before its password is checked.
func (s *AuthService) Login(ctx context.Context, identity, password string) (LoginResult, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" || password == "" {
		return LoginResult{}, apperror.NewValidation("email and password are required")
	}

	if err := s.lockout.Check(ctx, identity); err != nil {
		if apperror.HasCode(err, apperror.CodeLocked) {
			s.logger.Info("login rejected, identity locked", zap.String("identity", identity))
		}
		return LoginResult{}, err
	}

	principal, err := s.credentials.Verify(ctx, identity, password)
	if err != nil {
		if !apperror.HasCode(err, apperror.CodeInvalidCredentials) {
			return LoginResult{}, err
		}
		count, lockErr := s.lockout.RecordFailure(ctx, identity)
		if lockErr != nil {
			s.logger.Error("failed to record login failure", zap.String("identity", identity), zap.Error(lockErr))
			return LoginResult{}, lockErr
		}
		s.logger.Info("login failed", zap.String("identity", identity), zap.Int("failed_attempts", count))
		return LoginResult{}, err
	}

	if err := s.lockout.RecordSuccess(ctx, identity); err != nil {
		return LoginResult{}, err
	}

	token, err := s.tokens.Issue(principal, s.Realm())
	if err != nil {
		return LoginResult{}, apperror.NewInternal(err)
	}
	return LoginResult{Token: token, Principal: principal}, nil
}

// Authenticate validates a bearer token for this realm.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.Principal, error) {
	return s.tokens.Validate(ctx, token, s.Realm())
}

// List returns a page of principals with FailedAttempts read from the
// lockout counter.
func (s *AuthService) List(ctx context.Context, offset, limit int) ([]types.Principal, int, error) {
	principals, total, err := s.credentials.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	for i := range principals {
		count, err := s.lockout.Attempts(ctx, principals[i].Identity)
		if err != nil {
			return nil, 0, err
		}
		principals[i].FailedAttempts = count
	}
	return principals, total, nil
}

func (s *AuthService) SetActive(ctx context.Context, principalID string, active bool) error {
	if err := s.credentials.SetActive(ctx, principalID, active); err != nil {
		return err
	}
	s.logger.Info("principal activity changed", zap.String("principal_id", principalID), zap.Bool("active", active))
	return nil
}

// Delete removes a principal. Its predictions are retained.
func (s *AuthService) Delete(ctx context.Context, principalID string) error {
	if err := s.credentials.Delete(ctx, principalID); err != nil {
		return err
	}
	s.logger.Info("principal deleted", zap.String("principal_id", principalID))
	return nil
}
