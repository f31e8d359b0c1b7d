// Package auth implements first-factor login, the temp-token handshake to
// the second factor, Google sign-in, and session token issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newsinsight/api/internal/application/mfa"
	"github.com/newsinsight/api/internal/domain"
	"github.com/newsinsight/api/internal/infrastructure/google"
	"github.com/newsinsight/api/internal/pkg/fingerprint"
	"github.com/newsinsight/api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"-"`
}

// LoginResult is either a finished login (Token set) or a pending one
// (MFARequired with the temp token for the second-factor handshake).
type LoginResult struct {
	MFARequired bool            `json:"mfaRequired"`
	TempToken   string          `json:"tempToken,omitempty"`
	Methods     []string        `json:"methods,omitempty"`
	Account     *domain.Account `json:"account,omitempty"`
	Token       string          `json:"token,omitempty"`
	ExpiresIn   int             `json:"expiresIn,omitempty"`
}

// CompleteLoginResult is the response of the login-completion endpoint.
type CompleteLoginResult struct {
	Account        *domain.Account `json:"account"`
	Token          string          `json:"token"`
	ExpiresIn      int             `json:"expiresIn"`
	BackupCodeUsed bool            `json:"backupCodeUsed"`
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	CompleteMFALogin(ctx context.Context, req mfa.VerifyLoginRequest) (*CompleteLoginResult, error)
	GoogleLogin(ctx context.Context, idToken, userAgent string) (*LoginResult, error)
	Account(ctx context.Context, userID string) (*domain.Account, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Put(ctx context.Context, p *domain.Profile) error
}

type settingsStore interface {
	Get(ctx context.Context, userID string) (*domain.MFASettings, error)
}

type trustedDeviceStore interface {
	Get(ctx context.Context, userID, fp string) (*domain.TrustedDevice, error)
}

type tempTokenIssuer interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
}

type loginVerifier interface {
	VerifyLogin(ctx context.Context, req mfa.VerifyLoginRequest) (*mfa.VerifyLoginResult, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*google.Payload, error)
}

type jwtSigner interface {
	Sign(userID, role, email, username string, mfaVerified bool, expiry time.Duration) (string, error)
}

type service struct {
	userRepo      userStore
	profileRepo   profileStore
	settingsRepo  settingsStore
	deviceRepo    trustedDeviceStore
	tempTokens    tempTokenIssuer
	verifier      loginVerifier
	google        googleVerifier
	jwtProvider   jwtSigner
	sessionExpiry time.Duration
	oauthExpiry   time.Duration
	tempTokenTTL  time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	UserRepo      userStore
	ProfileRepo   profileStore
	SettingsRepo  settingsStore
	DeviceRepo    trustedDeviceStore
	TempTokens    tempTokenIssuer
	Verifier      loginVerifier
	Google        googleVerifier
	JWTProvider   jwtSigner
	SessionExpiry time.Duration
	OAuthExpiry   time.Duration
	TempTokenTTL  time.Duration
	Now           func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		userRepo:      deps.UserRepo,
		profileRepo:   deps.ProfileRepo,
		settingsRepo:  deps.SettingsRepo,
		deviceRepo:    deps.DeviceRepo,
		tempTokens:    deps.TempTokens,
		verifier:      deps.Verifier,
		google:        deps.Google,
		jwtProvider:   deps.JWTProvider,
		sessionExpiry: deps.SessionExpiry,
		oauthExpiry:   deps.OAuthExpiry,
		tempTokenTTL:  deps.TempTokenTTL,
		now:           now,
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		u, err = s.userRepo.GetByEmail(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	settings, err := s.settingsRepo.Get(ctx, u.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if settings != nil && settings.Enabled {
		if s.deviceTrusted(ctx, u.UserID, req.UserAgent) {
			// Device trust was earned by a previous second-factor success.
			return s.finishLogin(ctx, u, true, s.sessionExpiry)
		}
		tempToken, err := s.tempTokens.Issue(ctx, u.UserID, s.tempTokenTTL)
		if err != nil {
			return nil, err
		}
		return &LoginResult{
			MFARequired: true,
			TempToken:   tempToken,
			Methods:     settings.Methods,
		}, nil
	}
	return s.finishLogin(ctx, u, false, s.sessionExpiry)
}

func (s *service) CompleteMFALogin(ctx context.Context, req mfa.VerifyLoginRequest) (*CompleteLoginResult, error) {
	result, err := s.verifier.VerifyLogin(ctx, req)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.Get(ctx, result.UserID)
	if err != nil {
		return nil, err
	}
	login, err := s.finishLogin(ctx, u, true, s.sessionExpiry)
	if err != nil {
		return nil, err
	}
	return &CompleteLoginResult{
		Account:        login.Account,
		Token:          login.Token,
		ExpiresIn:      login.ExpiresIn,
		BackupCodeUsed: result.BackupCodeUsed,
	}, nil
}

func (s *service) GoogleLogin(ctx context.Context, idToken, userAgent string) (*LoginResult, error) {
	payload, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.GetByEmail(ctx, payload.Email)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = s.provisionGoogleUser(ctx, payload)
	}
	if err != nil {
		return nil, err
	}
	if !u.Enable {
		return nil, fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	}

	settings, err := s.settingsRepo.Get(ctx, u.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if settings != nil && settings.Enabled && !s.deviceTrusted(ctx, u.UserID, userAgent) {
		tempToken, err := s.tempTokens.Issue(ctx, u.UserID, s.tempTokenTTL)
		if err != nil {
			return nil, err
		}
		return &LoginResult{MFARequired: true, TempToken: tempToken, Methods: settings.Methods}, nil
	}
	return s.finishLogin(ctx, u, settings != nil && settings.Enabled, s.oauthExpiry)
}

func (s *service) Account(ctx context.Context, userID string) (*domain.Account, error) {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.accountOf(ctx, u), nil
}

func (s *service) finishLogin(ctx context.Context, u *domain.User, mfaVerified bool, expiry time.Duration) (*LoginResult, error) {
	token, err := s.jwtProvider.Sign(u.UserID, u.Role, u.Email, u.Username, mfaVerified, expiry)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Account:   s.accountOf(ctx, u),
		Token:     token,
		ExpiresIn: int(expiry.Seconds()),
	}, nil
}

// accountOf builds the login-response user projection. Profile completeness
// is a pure read-side derivation; a missing profile simply reads as
// incomplete.
func (s *service) accountOf(ctx context.Context, u *domain.User) *domain.Account {
	profile, err := s.profileRepo.Get(ctx, u.UserID)
	if err != nil {
		profile = nil
	}
	return &domain.Account{
		UserID:            u.UserID,
		Username:          u.Username,
		Email:             u.Email,
		Role:              u.Role,
		EmailVerified:     u.EmailVerified,
		IsProfileComplete: profile.IsComplete(),
	}
}

func (s *service) deviceTrusted(ctx context.Context, userID, userAgent string) bool {
	if userAgent == "" {
		return false
	}
	d, err := s.deviceRepo.Get(ctx, userID, fingerprint.FromUserAgent(userAgent))
	if err != nil {
		return false
	}
	return d.ExpiresAt > s.now().Unix()
}

func (s *service) provisionGoogleUser(ctx context.Context, payload *google.Payload) (*domain.User, error) {
	now := s.now().UTC()
	u := &domain.User{
		UserID:        id.New(),
		Username:      payload.Email,
		Email:         payload.Email,
		Role:          domain.RoleUser,
		EmailVerified: payload.EmailVerified,
		AuthProvider:  "google",
		GoogleSub:     payload.Sub,
		Enable:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	profile := &domain.Profile{
		UserID:    u.UserID,
		FullName:  payload.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profileRepo.Put(ctx, profile); err != nil {
		return nil, err
	}
	return u, nil
}
