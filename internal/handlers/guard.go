package handlers

import (
	"context"
	"net/http"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

// Authenticator validates a bearer token for one realm.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Principal, error)
}

// Guard is called at the top of every protected handler. It either returns
// the validated principal or writes the error response.
type Guard struct {
	auth   Authenticator
	logger *zap.Logger
}

func NewGuard(auth Authenticator, logger *zap.Logger) Guard {
	return Guard{auth: auth, logger: logger}
}

func (g Guard) Principal(w http.ResponseWriter, r *http.Request) (types.Principal, bool) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, g.logger, apperror.NewTokenInvalid(err))
		return types.Principal{}, false
	}
	principal, err := g.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, r, g.logger, err)
		return types.Principal{}, false
	}
	return principal, true
}
