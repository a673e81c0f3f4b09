package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rainwatch/apiserver/internal/apperror"
	"github.com/rainwatch/apiserver/types"
)

func adminDeps(directory *mockDirectory) *testDeps {
	return &testDeps{
		adminAuth: &mockAuthFlow{
			realm: types.RealmAdmin,
			authenticateFn: func(ctx context.Context, token string) (types.Principal, error) {
				if token != "admin-token" {
					return types.Principal{}, apperror.NewTokenInvalid(nil)
				}
				return types.Principal{ID: "admin-1", Role: types.RealmAdmin, IsActive: true}, nil
			},
		},
		directory: directory,
	}
}

func TestListUsers_Paginates(t *testing.T) {
	var gotOffset, gotLimit int
	h := newTestRouter(adminDeps(&mockDirectory{
		listFn: func(ctx context.Context, offset, limit int) ([]types.Principal, int, error) {
			gotOffset, gotLimit = offset, limit
			return []types.Principal{{ID: "u1", FailedAttempts: 3}}, 41, nil
		},
	}))

	rec := doRequest(t, h, http.MethodGet, "/admin/users?page=3&limit=10", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotOffset != 20 || gotLimit != 10 {
		t.Fatalf("expected offset 20 limit 10, got %d %d", gotOffset, gotLimit)
	}

	var resp UserListResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 41 || resp.Page != 3 || resp.Items[0].FailedAttempts != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListUsers_RejectsUserToken(t *testing.T) {
	h := newTestRouter(adminDeps(&mockDirectory{}))
	rec := doRequest(t, h, http.MethodGet, "/admin/users", "good", nil)
	assertError(t, rec, http.StatusUnauthorized, apperror.CodeTokenInvalid)
}

func TestListUsers_BadPagination(t *testing.T) {
	h := newTestRouter(adminDeps(&mockDirectory{}))
	rec := doRequest(t, h, http.MethodGet, "/admin/users?page=0", "admin-token", nil)
	assertError(t, rec, http.StatusBadRequest, apperror.CodeValidation)
}

func TestSetUserActive(t *testing.T) {
	var gotID string
	var gotActive bool
	h := newTestRouter(adminDeps(&mockDirectory{
		setActiveFn: func(ctx context.Context, id string, active bool) error {
			gotID, gotActive = id, active
			return nil
		},
	}))

	inactive := false
	rec := doRequest(t, h, http.MethodPut, "/admin/users/u1/active", "admin-token", SetActiveRequest{Active: &inactive})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotID != "u1" || gotActive {
		t.Fatalf("unexpected call %s %v", gotID, gotActive)
	}

	rec = doRequest(t, h, http.MethodPut, "/admin/users/u1/active", "admin-token", map[string]any{})
	assertError(t, rec, http.StatusBadRequest, apperror.CodeValidation)
}

func TestDeleteUser(t *testing.T) {
	h := newTestRouter(adminDeps(&mockDirectory{
		deleteFn: func(ctx context.Context, id string) error {
			if id == "missing" {
				return apperror.NewNotFound("principal not found")
			}
			return nil
		},
	}))

	rec := doRequest(t, h, http.MethodDelete, "/admin/users/u1", "admin-token", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, "/admin/users/missing", "admin-token", nil)
	assertError(t, rec, http.StatusNotFound, apperror.CodeNotFound)
}
