package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/newsinsight/api/internal/domain"
)

// Envelope is the response wrapper used by every endpoint.
type Envelope struct {
	Status   string                 `json:"status"`
	Message  string                 `json:"message"`
	Data     interface{}            `json:"data"`
	Error    *ErrorBody             `json:"error"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ErrorBody carries the machine-readable API error code.
type ErrorBody struct {
	Code string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{
		Status:   "success",
		Message:  message,
		Data:     data,
		Metadata: map[string]interface{}{},
	})
}

// httpError maps a service error onto the envelope: the wrapped sentinel
// picks the HTTP status, domain.ErrorCode picks the envelope code.
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, Envelope{
		Status:   "error",
		Message:  msg,
		Error:    &ErrorBody{Code: domain.ErrorCode(err)},
		Metadata: map[string]interface{}{},
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	httpError(w, domain.Coded(domain.CodeValidationError, domain.ErrBadRequest, msg))
}

func writeUnauthorized(w http.ResponseWriter) {
	httpError(w, domain.Coded(domain.CodeUnauthorized, domain.ErrUnauthorized, "unauthorized"))
}
