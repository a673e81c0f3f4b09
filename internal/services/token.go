package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
)

const DefaultTokenTTL = 30 * time.Minute

// Claims is the token payload. Exactly one of UserID and AdminID is set,
// matching Realm.
type Claims struct {
	UserID  string      `json:"user_id,omitempty"`
	AdminID string      `json:"admin_id,omitempty"`
	Realm   types.Realm `json:"realm"`
	jwt.RegisteredClaims
}

// principalID returns the id claim for realm, or an error when the claim
// set belongs to another realm.
func (c *Claims) principalID(realm types.Realm) (string, error) {
	if c.Realm != realm {
		return "", fmt.Errorf("token realm %q, expected %q", c.Realm, realm)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "", errors.New("missing subject")
	}
	switch realm {
	case types.RealmUser:
		if c.UserID == "" || c.AdminID != "" {
			return "", errors.New("claims do not match user realm")
		}
		return c.UserID, nil
	case types.RealmAdmin:
		if c.AdminID == "" || c.UserID != "" {
			return "", errors.New("claims do not match admin realm")
		}
		return c.AdminID, nil
	default:
		return "", fmt.Errorf("unknown realm %q", realm)
	}
}

// PrincipalFinder re-fetches the principal a token was issued to.
type PrincipalFinder interface {
	FindActive(ctx context.Context, principalID, identity string) (types.Principal, error)
}

// TokenService issues and validates HS256 tokens for every realm.
type TokenService struct {
	secret  []byte
	ttl     time.Duration
	finders map[types.Realm]PrincipalFinder
	now     func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, finders map[types.Realm]PrincipalFinder) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret:  []byte(secret),
		ttl:     ttl,
		finders: finders,
		now:     time.Now,
	}, nil
}

// Issue signs a token for principal in realm.
func (s *TokenService) Issue(principal types.Principal, realm types.Realm) (string, error) {
	if !realm.Valid() {
		return "", fmt.Errorf("unknown realm %q", realm)
	}

	now := s.now()
	claims := Claims{
		Realm: realm,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if realm == types.RealmAdmin {
		claims.AdminID = principal.ID
	} else {
		claims.UserID = principal.ID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifies a token for expectedRealm and returns the active
// principal it refers to.
func (s *TokenService) Validate(ctx context.Context, tokenString string, expectedRealm types.Realm) (types.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Principal{}, apperror.NewTokenExpired()
		}
		return types.Principal{}, apperror.NewTokenInvalid(err)
	}
	if !token.Valid {
		return types.Principal{}, apperror.NewTokenInvalid(errors.New("invalid token"))
	}

	principalID, err := claims.principalID(expectedRealm)
	if err != nil {
		return types.Principal{}, apperror.NewTokenInvalid(err)
	}

	finder, ok := s.finders[expectedRealm]
	if !ok {
		return types.Principal{}, apperror.NewInternal(fmt.Errorf("no principal finder for realm %q", expectedRealm))
	}
	principal, err := finder.FindActive(ctx, principalID, claims.Subject)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeNotFound) {
			return types.Principal{}, apperror.NewInactive()
		}
		return types.Principal{}, err
	}
	return principal, nil
}
