// Package mfa implements the multi-factor authentication core: challenge
// issuance, verification, settings management, and device trust.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/newsinsight/api/internal/domain"
	"github.com/newsinsight/api/internal/infrastructure/smtp"
	"github.com/newsinsight/api/internal/infrastructure/sns"
	"github.com/newsinsight/api/internal/pkg/code"
	"github.com/newsinsight/api/internal/pkg/fingerprint"
	"github.com/newsinsight/api/internal/pkg/id"
	"github.com/newsinsight/api/internal/pkg/totp"
)

// Status is the settings projection returned by GET /mfa/status.
type Status struct {
	IsEnabled        bool     `json:"isEnabled"`
	EnabledMethods   []string `json:"enabledMethods"`
	AvailableMethods []string `json:"availableMethods"`
}

// TOTPSetup is everything the client needs to enroll an authenticator app.
type TOTPSetup struct {
	Secret         string `json:"secret"`
	QRCode         string `json:"qrCode"`
	ManualEntryKey string `json:"manualEntryKey"`
}

type SendCodeRequest struct {
	UserID    string // from session, when present
	Method    string `json:"method" validate:"required"`
	TempToken string `json:"tempToken"`
	Purpose   string `json:"purpose"`
}

type CodeIssued struct {
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type VerifyLoginRequest struct {
	UserID      string `json:"userId"`
	TempToken   string `json:"tempToken"`
	Code        string `json:"code" validate:"required"`
	Method      string `json:"method"`
	TrustDevice bool   `json:"trustDevice"`
	UserAgent   string `json:"-"`
}

// VerifyLoginResult reports which factor satisfied the login completion.
type VerifyLoginResult struct {
	UserID         string
	Method         string
	BackupCodeUsed bool
}

type Service interface {
	Status(ctx context.Context, userID string) (*Status, error)
	SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error)
	ConfirmTOTP(ctx context.Context, userID, passcode string) (backupCodes, enabledMethods []string, err error)
	EnableEmail(ctx context.Context, userID string) (enabledMethods []string, err error)
	DisableMethod(ctx context.Context, userID, method string) (*Status, error)
	SendCode(ctx context.Context, req SendCodeRequest) (*CodeIssued, error)
	VerifyCode(ctx context.Context, userID, method, passcode string) error
	VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*VerifyLoginResult, error)
	UntrustDevice(ctx context.Context, userID, userAgent string) error
	ListBackupCodes(ctx context.Context, userID string) (codes []string, remaining int, err error)
	RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error)
}

type settingsStore interface {
	Get(ctx context.Context, userID string) (*domain.MFASettings, error)
	Put(ctx context.Context, s *domain.MFASettings) error
	ConsumeBackupCode(ctx context.Context, userID, code string) error
}

type challengeStore interface {
	Put(ctx context.Context, c *domain.MFAChallenge) error
	GetLatestValid(ctx context.Context, userID, method, purpose string, now time.Time) (*domain.MFAChallenge, error)
	FindValidByCode(ctx context.Context, userID, method, purpose, passcode string, now time.Time) (*domain.MFAChallenge, error)
	Consume(ctx context.Context, userID, attemptID string, now time.Time) error
}

type trustedDeviceStore interface {
	Put(ctx context.Context, d *domain.TrustedDevice) error
	Delete(ctx context.Context, userID, fingerprint string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

type tempTokenStore interface {
	Resolve(ctx context.Context, token string) (string, error)
	Consume(ctx context.Context, token string) (string, error)
}

type service struct {
	settingsRepo  settingsStore
	challengeRepo challengeStore
	deviceRepo    trustedDeviceStore
	userRepo      userStore
	profileRepo   profileStore
	tempTokens    tempTokenStore
	mailer        smtp.Mailer
	smsSender     sns.SMSSender
	totpIssuer    string
	challengeTTL  time.Duration
	trustTTL      time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	SettingsRepo  settingsStore
	ChallengeRepo challengeStore
	DeviceRepo    trustedDeviceStore
	UserRepo      userStore
	ProfileRepo   profileStore
	TempTokens    tempTokenStore
	Mailer        smtp.Mailer
	SMSSender     sns.SMSSender
	TOTPIssuer    string
	ChallengeTTL  time.Duration
	TrustTTL      time.Duration
	Now           func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		settingsRepo:  deps.SettingsRepo,
		challengeRepo: deps.ChallengeRepo,
		deviceRepo:    deps.DeviceRepo,
		userRepo:      deps.UserRepo,
		profileRepo:   deps.ProfileRepo,
		tempTokens:    deps.TempTokens,
		mailer:        deps.Mailer,
		smsSender:     deps.SMSSender,
		totpIssuer:    deps.TOTPIssuer,
		challengeTTL:  deps.ChallengeTTL,
		trustTTL:      deps.TrustTTL,
		now:           now,
	}
}

func (s *service) Status(ctx context.Context, userID string) (*Status, error) {
	settings, err := s.getOrEmpty(ctx, userID)
	if err != nil {
		return nil, err
	}
	return statusOf(settings), nil
}

func (s *service) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	settings, err := s.getOrEmpty(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.MethodEnabled(domain.MethodTOTP) {
		return nil, domain.Coded(domain.CodeTOTPAlreadyEnabled, domain.ErrBadRequest, "totp is already enabled")
	}
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	enrollment, err := totp.Generate(s.totpIssuer, u.Email)
	if err != nil {
		return nil, err
	}
	// The secret stays unconfirmed — not in Methods — until the user
	// proves the authenticator works via ConfirmTOTP.
	settings.TOTPSecret = enrollment.Secret
	settings.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.Put(ctx, settings); err != nil {
		return nil, err
	}
	return &TOTPSetup{
		Secret:         enrollment.Secret,
		QRCode:         enrollment.QRCodeDataURL,
		ManualEntryKey: enrollment.ManualEntryKey,
	}, nil
}

func (s *service) ConfirmTOTP(ctx context.Context, userID, passcode string) ([]string, []string, error) {
	settings, err := s.getOrEmpty(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if settings.TOTPSecret == "" {
		return nil, nil, domain.Coded(domain.CodeTOTPNotSetup, domain.ErrBadRequest, "totp setup has not been started")
	}
	if !totp.Validate(passcode, settings.TOTPSecret, s.now()) {
		return nil, nil, domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid totp code")
	}
	if !settings.MethodEnabled(domain.MethodTOTP) {
		settings.Methods = append(settings.Methods, domain.MethodTOTP)
	}
	settings.Enabled = true
	// Confirmation is the one moment backup codes are issued automatically;
	// any previous set is overwritten.
	backupCodes, err := code.BackupSet()
	if err != nil {
		return nil, nil, err
	}
	settings.BackupCodes = backupCodes
	settings.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.Put(ctx, settings); err != nil {
		return nil, nil, err
	}
	return backupCodes, settings.Methods, nil
}

func (s *service) EnableEmail(ctx context.Context, userID string) ([]string, error) {
	settings, err := s.getOrEmpty(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.MethodEnabled(domain.MethodEmail) {
		settings.Methods = append(settings.Methods, domain.MethodEmail)
	}
	settings.Enabled = true
	settings.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.Put(ctx, settings); err != nil {
		return nil, err
	}
	return settings.Methods, nil
}

func (s *service) DisableMethod(ctx context.Context, userID, method string) (*Status, error) {
	if !slices.Contains(domain.AvailableMethods, method) {
		return nil, domain.Coded(domain.CodeInvalidMethod, domain.ErrBadRequest, "unknown mfa method")
	}
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "mfa is not enabled")
		}
		return nil, err
	}
	settings.Methods = slices.DeleteFunc(settings.Methods, func(m string) bool { return m == method })
	if method == domain.MethodTOTP {
		settings.TOTPSecret = ""
	}
	settings.Enabled = len(settings.Methods) > 0
	settings.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.Put(ctx, settings); err != nil {
		return nil, err
	}
	return statusOf(settings), nil
}

func (s *service) SendCode(ctx context.Context, req SendCodeRequest) (*CodeIssued, error) {
	if !domain.ChallengeMethod(req.Method) {
		return nil, domain.Coded(domain.CodeInvalidMethod, domain.ErrBadRequest, "method must be email or sms")
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = domain.PurposeLogin
	}
	userID := req.UserID
	if req.TempToken != "" {
		resolved, err := s.tempTokens.Resolve(ctx, req.TempToken)
		if err != nil {
			return nil, domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired token")
		}
		userID = resolved
	}
	if userID == "" {
		return nil, domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "session or temp token required")
	}
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "method not enabled for this account")
		}
		return nil, err
	}
	if !settings.MethodEnabled(req.Method) {
		return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "method not enabled for this account")
	}

	// Reuse a still-valid challenge instead of racing the user's inbox
	// with a second code that would invalidate the first.
	if existing, err := s.challengeRepo.GetLatestValid(ctx, userID, req.Method, purpose, s.now()); err == nil {
		return &CodeIssued{Method: req.Method, ExpiresAt: time.Unix(existing.ExpiresAt, 0).UTC()}, nil
	}

	challenge, err := s.issueChallenge(ctx, userID, req.Method, purpose)
	if err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, userID, req.Method, challenge.Code); err != nil {
		// Fire-and-forget for login codes: the challenge stays valid and
		// the user can request a resend.
		slog.Warn("challenge delivery failed", "user_id", userID, "method", req.Method, "err", err)
	}
	return &CodeIssued{Method: req.Method, ExpiresAt: time.Unix(challenge.ExpiresAt, 0).UTC()}, nil
}

func (s *service) VerifyCode(ctx context.Context, userID, method, passcode string) error {
	if !domain.ChallengeMethod(method) {
		return domain.Coded(domain.CodeInvalidMethod, domain.ErrBadRequest, "method must be email or sms")
	}
	return s.verifyChallengeCode(ctx, userID, method, domain.PurposeLogin, passcode)
}

func (s *service) VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*VerifyLoginResult, error) {
	userID := req.UserID
	if req.TempToken != "" {
		resolved, err := s.tempTokens.Resolve(ctx, req.TempToken)
		if err != nil {
			return nil, domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired token")
		}
		userID = resolved
	}
	if userID == "" {
		return nil, fmt.Errorf("userId or tempToken required: %w", domain.ErrBadRequest)
	}
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "mfa is not enabled")
		}
		return nil, err
	}
	if !settings.Enabled {
		return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "mfa is not enabled")
	}

	method, err := s.dispatchVerify(ctx, userID, settings, req.Method, req.Code)
	if err != nil {
		return nil, err
	}

	if req.TrustDevice && method != domain.MethodBackup && req.UserAgent != "" {
		now := s.now()
		d := &domain.TrustedDevice{
			UserID:      userID,
			Fingerprint: fingerprint.FromUserAgent(req.UserAgent),
			UserAgent:   req.UserAgent,
			CreatedAt:   now.Unix(),
			ExpiresAt:   now.Add(s.trustTTL).Unix(),
		}
		if err := s.deviceRepo.Put(ctx, d); err != nil {
			slog.Warn("failed to persist trusted device", "user_id", userID, "err", err)
		}
	}
	if req.TempToken != "" {
		// Burn the handshake token only after the second factor succeeded.
		if _, err := s.tempTokens.Consume(ctx, req.TempToken); err != nil {
			slog.Warn("failed to consume temp token", "user_id", userID, "err", err)
		}
	}
	return &VerifyLoginResult{
		UserID:         userID,
		Method:         method,
		BackupCodeUsed: method == domain.MethodBackup,
	}, nil
}

// UntrustDevice revokes the MFA-skip trust held by the calling device, so
// the next login from it goes through the full second-factor handshake.
func (s *service) UntrustDevice(ctx context.Context, userID, userAgent string) error {
	if userAgent == "" {
		return domain.Coded(domain.CodeValidationError, domain.ErrBadRequest, "user agent required")
	}
	return s.deviceRepo.Delete(ctx, userID, fingerprint.FromUserAgent(userAgent))
}

// dispatchVerify routes the presented code to the right verifier and
// returns the method that succeeded.
//
// Codes longer than 6 characters with no explicit method are routed to the
// backup path. This length sniffing is a legacy fallback; clients are
// expected to send an explicit method discriminator.
func (s *service) dispatchVerify(ctx context.Context, userID string, settings *domain.MFASettings, methodHint, passcode string) (string, error) {
	if methodHint == domain.MethodBackup || (methodHint == "" && len(passcode) > 6) {
		if err := s.verifyBackupCode(ctx, userID, settings, passcode); err != nil {
			return "", err
		}
		return domain.MethodBackup, nil
	}

	switch methodHint {
	case domain.MethodTOTP:
		return domain.MethodTOTP, s.verifyTOTPLogin(settings, passcode)
	case domain.MethodEmail, domain.MethodSMS:
		return methodHint, s.verifyChallengeCode(ctx, userID, methodHint, domain.PurposeLogin, passcode)
	case "":
		// No hint and a 6-digit code: try every enabled factor.
		if settings.MethodEnabled(domain.MethodTOTP) && s.verifyTOTPLogin(settings, passcode) == nil {
			return domain.MethodTOTP, nil
		}
		for _, m := range []string{domain.MethodEmail, domain.MethodSMS} {
			if settings.MethodEnabled(m) && s.verifyChallengeCode(ctx, userID, m, domain.PurposeLogin, passcode) == nil {
				return m, nil
			}
		}
		return "", domain.Coded(domain.CodeInvalidMFACode, domain.ErrBadRequest, "invalid mfa code")
	default:
		return "", domain.Coded(domain.CodeInvalidMethod, domain.ErrBadRequest, "unknown mfa method")
	}
}

func (s *service) verifyTOTPLogin(settings *domain.MFASettings, passcode string) error {
	if !settings.MethodEnabled(domain.MethodTOTP) || settings.TOTPSecret == "" {
		return domain.Coded(domain.CodeTOTPNotSetup, domain.ErrBadRequest, "totp is not configured")
	}
	if !totp.Validate(passcode, settings.TOTPSecret, s.now()) {
		return domain.Coded(domain.CodeInvalidMFACode, domain.ErrBadRequest, "invalid mfa code")
	}
	return nil
}

func (s *service) verifyChallengeCode(ctx context.Context, userID, method, purpose, passcode string) error {
	challenge, err := s.challengeRepo.FindValidByCode(ctx, userID, method, purpose, passcode, s.now())
	if err != nil {
		return domain.Coded(domain.CodeInvalidMFACode, domain.ErrBadRequest, "invalid or expired code")
	}
	// Conditional update: of concurrent submissions of the same code, at
	// most one consumption succeeds.
	if err := s.challengeRepo.Consume(ctx, userID, challenge.AttemptID, s.now()); err != nil {
		return domain.Coded(domain.CodeInvalidMFACode, domain.ErrBadRequest, "invalid or expired code")
	}
	return nil
}

func (s *service) verifyBackupCode(ctx context.Context, userID string, settings *domain.MFASettings, passcode string) error {
	normalized := strings.ToUpper(strings.TrimSpace(passcode))
	if len(settings.BackupCodes) == 0 {
		return domain.Coded(domain.CodeInvalidBackupCode, domain.ErrBadRequest, "no backup codes available")
	}
	if err := s.settingsRepo.ConsumeBackupCode(ctx, userID, normalized); err != nil {
		return domain.Coded(domain.CodeInvalidBackupCode, domain.ErrBadRequest, "invalid backup code")
	}
	return nil
}

func (s *service) ListBackupCodes(ctx context.Context, userID string) ([]string, int, error) {
	settings, err := s.getOrEmpty(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	codes := settings.BackupCodes
	if codes == nil {
		codes = []string{}
	}
	return codes, len(codes), nil
}

func (s *service) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Coded(domain.CodeMFANotEnabled, domain.ErrBadRequest, "mfa is not enabled")
		}
		return nil, err
	}
	// Unconditional replacement: every previously issued, unused code is
	// invalidated.
	backupCodes, err := code.BackupSet()
	if err != nil {
		return nil, err
	}
	settings.BackupCodes = backupCodes
	settings.UpdatedAt = s.now().UTC()
	if err := s.settingsRepo.Put(ctx, settings); err != nil {
		return nil, err
	}
	return backupCodes, nil
}

func (s *service) issueChallenge(ctx context.Context, userID, method, purpose string) (*domain.MFAChallenge, error) {
	otp, err := code.Numeric()
	if err != nil {
		return nil, err
	}
	now := s.now()
	challenge := &domain.MFAChallenge{
		UserID:    userID,
		AttemptID: id.New(),
		Method:    method,
		Purpose:   purpose,
		Code:      otp,
		Used:      false,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.challengeTTL).Unix(),
	}
	if err := s.challengeRepo.Put(ctx, challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

func (s *service) deliver(ctx context.Context, userID, method, otp string) error {
	switch method {
	case domain.MethodEmail:
		u, err := s.userRepo.Get(ctx, userID)
		if err != nil {
			return err
		}
		return s.mailer.SendEmail(u.Email, "Your NewsInsight verification code",
			fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", otp, int(s.challengeTTL.Minutes())))
	case domain.MethodSMS:
		p, err := s.profileRepo.Get(ctx, userID)
		if err != nil || p.PhoneNumber == "" {
			return fmt.Errorf("no phone number on account: %w", domain.ErrBadRequest)
		}
		return s.smsSender.SendSMS(ctx, p.PhoneNumber, "NewsInsight verification code: "+otp)
	}
	return fmt.Errorf("unsupported delivery method %q: %w", method, domain.ErrBadRequest)
}

func (s *service) getOrEmpty(ctx context.Context, userID string) (*domain.MFASettings, error) {
	settings, err := s.settingsRepo.Get(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	return &domain.MFASettings{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

func statusOf(settings *domain.MFASettings) *Status {
	methods := settings.Methods
	if methods == nil {
		methods = []string{}
	}
	return &Status{
		IsEnabled:        settings.Enabled,
		EnabledMethods:   methods,
		AvailableMethods: domain.AvailableMethods,
	}
}
