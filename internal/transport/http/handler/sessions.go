package handler

import (
	"encoding/json"
	"net/http"

	"github.com/newsinsight/api/internal/application/auth"
	"github.com/newsinsight/api/internal/pkg/validate"
	"github.com/newsinsight/api/internal/transport/http/middleware"
)

// SessionHandler handles login and account endpoints.
type SessionHandler struct {
	svc auth.Service
}

func NewSessionHandler(svc auth.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.UserAgent = r.UserAgent()
	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	if result.MFARequired {
		writeSuccess(w, http.StatusOK, "mfa verification required", result)
		return
	}
	writeSuccess(w, http.StatusOK, "login successful", result)
}

func (h *SessionHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	result, err := h.svc.GoogleLogin(r.Context(), req.IDToken, r.UserAgent())
	if err != nil {
		httpError(w, err)
		return
	}
	if result.MFARequired {
		writeSuccess(w, http.StatusOK, "mfa verification required", result)
		return
	}
	writeSuccess(w, http.StatusOK, "login successful", result)
}

func (h *SessionHandler) Account(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	account, err := h.svc.Account(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account", account)
}
