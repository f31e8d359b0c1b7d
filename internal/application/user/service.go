// Package user implements account lifecycle: registration with email
// verification, password recovery, profile management, and account removal.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/newsinsight/api/internal/domain"
	"github.com/newsinsight/api/internal/infrastructure/smtp"
	"github.com/newsinsight/api/internal/pkg/code"
	"github.com/newsinsight/api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

type ConfirmEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type RecoveryRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	ConfirmEmail(ctx context.Context, req ConfirmEmailRequest) error
	RequestPasswordRecovery(ctx context.Context, req RecoveryRequest) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error)
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	DeleteAccount(ctx context.Context, userID string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, userID string) error
	HardDelete(ctx context.Context, userID string) error
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	Put(ctx context.Context, p *domain.Profile) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	Delete(ctx context.Context, userID string) error
}

type challengeStore interface {
	Put(ctx context.Context, c *domain.MFAChallenge) error
	GetLatestValid(ctx context.Context, userID, method, purpose string, now time.Time) (*domain.MFAChallenge, error)
	FindValidByCode(ctx context.Context, userID, method, purpose, passcode string, now time.Time) (*domain.MFAChallenge, error)
	Consume(ctx context.Context, userID, attemptID string, now time.Time) error
}

type service struct {
	userRepo      userStore
	profileRepo   profileStore
	challengeRepo challengeStore
	mailer        smtp.Mailer
	challengeTTL  time.Duration
	now           func() time.Time
}

type ServiceDeps struct {
	UserRepo      userStore
	ProfileRepo   profileStore
	ChallengeRepo challengeStore
	Mailer        smtp.Mailer
	ChallengeTTL  time.Duration
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
		challengeRepo: deps.ChallengeRepo,
		mailer:        deps.Mailer,
		challengeTTL:  deps.ChallengeTTL,
		now:           now,
	}
}

// Register creates the user, seeds an empty profile, and emails a
// verification code. If the email cannot be delivered the whole
// registration is rolled back so the username and email stay claimable.
func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	}
	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		AuthProvider: "local",
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	if err := s.profileRepo.Put(ctx, &domain.Profile{UserID: u.UserID, CreatedAt: now, UpdatedAt: now}); err != nil {
		s.rollback(ctx, u.UserID)
		return nil, err
	}

	if err := s.sendVerification(ctx, u); err != nil {
		s.rollback(ctx, u.UserID)
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}
	return u, nil
}

func (s *service) ConfirmEmail(ctx context.Context, req ConfirmEmailRequest) error {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired code")
	}
	if err := s.consumeChallenge(ctx, u.UserID, domain.PurposeVerification, req.Code); err != nil {
		return err
	}
	return s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"email_verified": true})
}

func (s *service) RequestPasswordRecovery(ctx context.Context, req RecoveryRequest) error {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("no account for that email: %w", domain.ErrNotFound)
	}
	// A still-valid recovery code is reused rather than superseded.
	if _, err := s.challengeRepo.GetLatestValid(ctx, u.UserID, domain.MethodEmail, domain.PurposeRecovery, s.now()); err == nil {
		return nil
	}
	challenge, err := s.issueChallenge(ctx, u.UserID, domain.PurposeRecovery)
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(u.Email, "NewsInsight password recovery",
		fmt.Sprintf("Your password recovery code is %s. It expires in %d minutes.", challenge.Code, int(s.challengeTTL.Minutes())))
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired code")
	}
	if err := s.consumeChallenge(ctx, u.UserID, domain.PurposeRecovery, req.Code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"password_hash": string(hash)})
}

func (s *service) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	updates := map[string]interface{}{}
	set := func(attr string, v *string) {
		if v != nil {
			updates[attr] = *v
		}
	}
	set("full_name", req.FullName)
	set("gender", req.Gender)
	set("date_of_birth", req.DateOfBirth)
	set("phone_number", req.PhoneNumber)
	set("domicile", req.Domicile)
	set("news_interest", req.NewsInterest)
	set("headline", req.Headline)
	set("biography", req.Biography)
	if len(updates) == 0 {
		return nil, fmt.Errorf("no profile fields provided: %w", domain.ErrBadRequest)
	}
	if err := s.profileRepo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	return s.profileRepo.Get(ctx, userID)
}

func (s *service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profileRepo.Get(ctx, userID)
}

func (s *service) DeleteAccount(ctx context.Context, userID string) error {
	if _, err := s.userRepo.Get(ctx, userID); err != nil {
		return err
	}
	return s.userRepo.SoftDelete(ctx, userID)
}

func (s *service) sendVerification(ctx context.Context, u *domain.User) error {
	challenge, err := s.issueChallenge(ctx, u.UserID, domain.PurposeVerification)
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(u.Email, "Verify your NewsInsight account",
		fmt.Sprintf("Welcome to NewsInsight, %s. Your verification code is %s. It expires in %d minutes.",
			u.Username, challenge.Code, int(s.challengeTTL.Minutes())))
}

func (s *service) issueChallenge(ctx context.Context, userID, purpose string) (*domain.MFAChallenge, error) {
	otp, err := code.Numeric()
	if err != nil {
		return nil, err
	}
	now := s.now()
	challenge := &domain.MFAChallenge{
		UserID:    userID,
		AttemptID: id.New(),
		Method:    domain.MethodEmail,
		Purpose:   purpose,
		Code:      otp,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.challengeTTL).Unix(),
	}
	if err := s.challengeRepo.Put(ctx, challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

func (s *service) consumeChallenge(ctx context.Context, userID, purpose, passcode string) error {
	challenge, err := s.challengeRepo.FindValidByCode(ctx, userID, domain.MethodEmail, purpose, passcode, s.now())
	if err != nil {
		return domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired code")
	}
	if err := s.challengeRepo.Consume(ctx, userID, challenge.AttemptID, s.now()); err != nil {
		return domain.Coded(domain.CodeInvalidToken, domain.ErrBadRequest, "invalid or expired code")
	}
	return nil
}

// rollback undoes a partially created registration so the username and
// email stay claimable.
func (s *service) rollback(ctx context.Context, userID string) {
	if err := s.profileRepo.Delete(ctx, userID); err != nil {
		slog.Warn("registration rollback: profile delete failed", "user_id", userID, "err", err)
	}
	if err := s.userRepo.HardDelete(ctx, userID); err != nil {
		slog.Warn("registration rollback: user delete failed", "user_id", userID, "err", err)
	}
}
