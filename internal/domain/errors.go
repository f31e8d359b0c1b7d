package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// API error codes surfaced in the response envelope.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeTOTPAlreadyEnabled = "TOTP_ALREADY_ENABLED"
	CodeTOTPNotSetup       = "TOTP_NOT_SETUP"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidMethod      = "INVALID_METHOD"
	CodeMFANotEnabled      = "MFA_NOT_ENABLED"
	CodeInvalidMFACode     = "INVALID_MFA_CODE"
	CodeInvalidBackupCode  = "INVALID_BACKUP_CODE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// CodedError carries a machine-readable API code alongside a wrapped
// sentinel, so a handler can derive both the HTTP status and the envelope
// error code from a single value.
type CodedError struct {
	Code string
	Err  error
	Msg  string
}

func (e *CodedError) Error() string { return e.Msg }

func (e *CodedError) Unwrap() error { return e.Err }

// Coded builds a CodedError wrapping the given sentinel.
func Coded(code string, sentinel error, msg string) error {
	return &CodedError{Code: code, Err: sentinel, Msg: msg}
}

// ErrorCode extracts the API code from err, falling back to a code derived
// from the wrapped sentinel.
func ErrorCode(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		return CodeValidationError
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	}
	return CodeInternalError
}
