package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newsinsight/api/internal/application/user"
	"github.com/newsinsight/api/internal/domain"
	"github.com/newsinsight/api/internal/pkg/validate"
	"github.com/newsinsight/api/internal/transport/http/middleware"
)

// UserHandler handles registration, email confirmation, password recovery
// and profile endpoints.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "registered, check your email for the verification code", u)
}

func (h *UserHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req user.ConfirmEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.ConfirmEmail(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "email confirmed", nil)
}

// PasswordRecovery dispatches /auth/password-recovery/{action}:
// "request" emails a recovery code, "reset" consumes it and sets the new
// password.
func (h *UserHandler) PasswordRecovery(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req user.RecoveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		if err := h.svc.RequestPasswordRecovery(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "recovery code sent", nil)
	case "reset":
		var req user.ResetPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		if err := h.svc.ResetPassword(r.Context(), req); err != nil {
			httpError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "password updated", nil)
	default:
		badRequest(w, "unknown password recovery action")
	}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "profile", p)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "profile updated", p)
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), claims.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account deleted", nil)
}

// AdminDeleteUser soft-deletes another user's account. Reachable only
// through the admin-gated route group.
func (h *UserHandler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		badRequest(w, "user id required")
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account deleted", nil)
}
