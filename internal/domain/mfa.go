package domain

import (
	"slices"
	"time"
)

// MFA method names. "backup" is a verification path, not an enrollable method.
const (
	MethodTOTP   = "totp"
	MethodEmail  = "email"
	MethodSMS    = "sms"
	MethodBackup = "backup"
)

// AvailableMethods lists every method a user may enable.
var AvailableMethods = []string{MethodTOTP, MethodEmail, MethodSMS}

// ChallengeMethod reports whether method is delivered as a one-time code
// (as opposed to TOTP, which is derived client-side).
func ChallengeMethod(method string) bool {
	return method == MethodEmail || method == MethodSMS
}

// MFASettings is the per-user MFA state. One-to-one with User.
// Invariant: Enabled == len(Methods) > 0.
// A TOTP secret present while "totp" is absent from Methods means setup was
// started but not yet confirmed with a valid code.
type MFASettings struct {
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Enabled     bool      `json:"enabled" dynamodbav:"enabled"`
	Methods     []string  `json:"methods" dynamodbav:"methods,stringset,omitempty"`
	TOTPSecret  string    `json:"-" dynamodbav:"totp_secret,omitempty"`
	BackupCodes []string  `json:"-" dynamodbav:"backup_codes,stringset,omitempty"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
}

// MethodEnabled reports whether the user has confirmed the given method.
func (s *MFASettings) MethodEnabled(method string) bool {
	if s == nil {
		return false
	}
	return slices.Contains(s.Methods, method)
}

// Challenge purposes. A challenge is only consumable for the purpose it was
// issued with.
const (
	PurposeLogin        = "login"
	PurposeVerification = "verification"
	PurposeRecovery     = "recovery"
)

// MFAChallenge is an ephemeral one-time code awaiting verification.
// PK: user_id, SK: attempt_id (ULID — newest-first queries give recency).
// ExpiresAt doubles as the DynamoDB TTL attribute.
type MFAChallenge struct {
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	AttemptID string `json:"id" dynamodbav:"attempt_id"`
	Method    string `json:"method" dynamodbav:"method"` // "email" | "sms"
	Purpose   string `json:"purpose" dynamodbav:"purpose"`
	Code      string `json:"-" dynamodbav:"code"`
	Used      bool   `json:"used" dynamodbav:"used"`
	CreatedAt int64  `json:"created" dynamodbav:"created_at"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// Valid reports whether the challenge is unused and unexpired at now.
func (c *MFAChallenge) Valid(now time.Time) bool {
	return c != nil && !c.Used && c.ExpiresAt > now.Unix()
}

// TrustedDevice lets a recognized client skip MFA for a bounded window.
// PK: user_id, SK: fingerprint. Re-trusting the same fingerprint is a plain
// upsert that refreshes ExpiresAt.
type TrustedDevice struct {
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	Fingerprint string `json:"fingerprint" dynamodbav:"fingerprint"`
	UserAgent   string `json:"user_agent" dynamodbav:"user_agent"`
	CreatedAt   int64  `json:"created" dynamodbav:"created_at"`
	ExpiresAt   int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}
