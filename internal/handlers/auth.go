package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/internal/services"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

// AuthFlow is the realm-bound authentication surface used by AuthHandler.
type AuthFlow interface {
	Authenticator
	Realm() types.Realm
	Register(ctx context.Context, input services.RegisterInput) (types.Principal, error)
	Login(ctx context.Context, identity, password string) (services.LoginResult, error)
	ChangePassword(ctx context.Context, principal types.Principal, current, next string) error
	UpdateProfile(ctx context.Context, principalID string, input services.ProfileInput) (services.LoginResult, error)
}

// AuthHandler serves registration, login and token verification for one realm.
type AuthHandler struct {
	auth   AuthFlow
	guard  Guard
	logger *zap.Logger
}

func NewAuthHandler(auth AuthFlow, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, guard: NewGuard(auth, logger), logger: logger}
}

// UserAuthRouter registers the user realm routes.
func UserAuthRouter(r chi.Router, auth AuthFlow, logger *zap.Logger) {
	handler := NewAuthHandler(auth, logger)

	r.Post("/signup", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/verify", handler.Verify)
	r.Put("/users/{principalID}/password", handler.ChangePassword)
	r.Put("/users/{principalID}/profile", handler.UpdateProfile)
}

// AdminAuthRouter registers the admin realm routes. Mount it under /admin.
func AdminAuthRouter(r chi.Router, auth AuthFlow, logger *zap.Logger) {
	handler := NewAuthHandler(auth, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Get("/verify", handler.Verify)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, h.logger, apperror.NewValidation("email and password are required"))
		return
	}

	principal, err := h.auth.Register(r.Context(), services.RegisterInput{
		Identity: req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message:   string(h.auth.Realm()) + " registered successfully",
		Principal: principal,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message:   "login successful",
		Token:     result.Token,
		Principal: result.Principal,
	})
}

// Verify returns the principal behind the bearer token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// ChangePassword lets a principal replace its own password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}
	if chi.URLParam(r, "principalID") != principal.ID {
		writeError(w, r, h.logger, apperror.NewForbidden("cannot change another user's password"))
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, r, h.logger, apperror.NewValidation("current and new password are required"))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), principal, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated successfully"})
}

// UpdateProfile lets a principal change its own email and full name. The
// response carries a token for the updated identity.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}
	if chi.URLParam(r, "principalID") != principal.ID {
		writeError(w, r, h.logger, apperror.NewForbidden("you can only update your own profile"))
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, h.logger, apperror.NewValidation("email is required"))
		return
	}

	result, err := h.auth.UpdateProfile(r.Context(), principal.ID, services.ProfileInput{
		Identity: req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Message:   "profile updated successfully",
		Token:     result.Token,
		Principal: result.Principal,
	})
}

type RegisterRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UpdateProfileRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullname"`
}

type RegisterResponse struct {
	Message   string          `json:"message"`
	Principal types.Principal `json:"principal"`
}

type LoginResponse struct {
	Message   string          `json:"message"`
	Token     string          `json:"token"`
	Principal types.Principal `json:"principal"`
}
