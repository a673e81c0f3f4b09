package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
	"go.uber.org/zap"
)

// UserDirectory is the administrative view over user-realm principals.
type UserDirectory interface {
	List(ctx context.Context, offset, limit int) ([]types.Principal, int, error)
	SetActive(ctx context.Context, principalID string, active bool) error
	Delete(ctx context.Context, principalID string) error
}

// AdminHandler serves user management for authenticated admins.
type AdminHandler struct {
	guard  Guard
	users  UserDirectory
	logger *zap.Logger
}

func NewAdminHandler(admins Authenticator, users UserDirectory, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{guard: NewGuard(admins, logger), users: users, logger: logger}
}

// AdminRouter registers user management routes. Mount it under /admin.
func AdminRouter(r chi.Router, admins Authenticator, users UserDirectory, logger *zap.Logger) {
	handler := NewAdminHandler(admins, users, logger)

	r.Get("/users", handler.ListUsers)
	r.Put("/users/{principalID}/active", handler.SetUserActive)
	r.Delete("/users/{principalID}", handler.DeleteUser)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.guard.Principal(w, r); !ok {
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	users, total, err := h.users.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *AdminHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if req.Active == nil {
		writeError(w, r, h.logger, apperror.NewValidation("active is required"))
		return
	}

	principalID := chi.URLParam(r, "principalID")
	if err := h.users.SetActive(r.Context(), principalID, *req.Active); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user activity changed by admin",
		zap.String("admin_id", admin.ID),
		zap.String("user_id", principalID),
		zap.Bool("active", *req.Active),
	)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user updated successfully"})
}

// DeleteUser removes a user. The user's predictions are retained.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.guard.Principal(w, r)
	if !ok {
		return
	}

	principalID := chi.URLParam(r, "principalID")
	if err := h.users.Delete(r.Context(), principalID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user deleted by admin", zap.String("admin_id", admin.ID), zap.String("user_id", principalID))
	w.WriteHeader(http.StatusNoContent)
}

type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// UserListResponse is the paginated user list payload.
type UserListResponse struct {
	Items []types.Principal `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}
