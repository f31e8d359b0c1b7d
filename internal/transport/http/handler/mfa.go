package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newsinsight/api/internal/application/auth"
	"github.com/newsinsight/api/internal/application/mfa"
	"github.com/newsinsight/api/internal/pkg/validate"
	"github.com/newsinsight/api/internal/transport/http/middleware"
)

// MFAHandler handles the /mfa endpoints. Verify-login also completes the
// pending first-factor login, so it needs the auth service too.
type MFAHandler struct {
	svc     mfa.Service
	authSvc auth.Service
}

func NewMFAHandler(svc mfa.Service, authSvc auth.Service) *MFAHandler {
	return &MFAHandler{svc: svc, authSvc: authSvc}
}

func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	status, err := h.svc.Status(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "mfa status", status)
}

func (h *MFAHandler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	setup, err := h.svc.SetupTOTP(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "scan the qr code with your authenticator app", setup)
}

func (h *MFAHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	backupCodes, enabledMethods, err := h.svc.ConfirmTOTP(r.Context(), claims.UserID, req.Token)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "totp enabled", map[string]interface{}{
		"backupCodes":    backupCodes,
		"enabledMethods": enabledMethods,
	})
}

func (h *MFAHandler) EnableEmail(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	enabledMethods, err := h.svc.EnableEmail(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "email mfa enabled", map[string]interface{}{
		"enabledMethods": enabledMethods,
	})
}

func (h *MFAHandler) DisableMethod(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	method := chi.URLParam(r, "method")
	status, err := h.svc.DisableMethod(r.Context(), claims.UserID, method)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "mfa method disabled", map[string]interface{}{
		"isEnabled":      status.IsEnabled,
		"enabledMethods": status.EnabledMethods,
	})
}

func (h *MFAHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req mfa.SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	// A session, when present, is an alternative to the temp token.
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		req.UserID = claims.UserID
	}
	issued, err := h.svc.SendCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "code sent", issued)
}

func (h *MFAHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId" validate:"required"`
		Method string `json:"method" validate:"required"`
		Code   string `json:"code" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.svc.VerifyCode(r.Context(), req.UserID, req.Method, req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "code verified", map[string]interface{}{
		"verified": true,
		"method":   req.Method,
	})
}

func (h *MFAHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req mfa.VerifyLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.UserAgent = r.UserAgent()
	result, err := h.authSvc.CompleteMFALogin(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "login complete", result)
}

func (h *MFAHandler) UntrustDevice(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if err := h.svc.UntrustDevice(r.Context(), claims.UserID, r.UserAgent()); err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "device trust revoked", map[string]interface{}{
		"untrusted": true,
	})
}

func (h *MFAHandler) BackupCodes(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	codes, remaining, err := h.svc.ListBackupCodes(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "backup codes", map[string]interface{}{
		"backupCodes": codes,
		"remaining":   remaining,
	})
}

func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	codes, err := h.svc.RegenerateBackupCodes(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "backup codes regenerated", map[string]interface{}{
		"backupCodes": codes,
	})
}
