package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newsinsight/api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockUserStore) SoftDelete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockUserStore) HardDelete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockProfileStore struct{ mock.Mock }

func (m *mockProfileStore) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.Profile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockProfileStore) Put(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockProfileStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockProfileStore) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockChallengeStore struct{ mock.Mock }

func (m *mockChallengeStore) Put(ctx context.Context, c *domain.MFAChallenge) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockChallengeStore) GetLatestValid(ctx context.Context, userID, method, purpose string, now time.Time) (*domain.MFAChallenge, error) {
	args := m.Called(ctx, userID, method, purpose, now)
	if c, _ := args.Get(0).(*domain.MFAChallenge); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockChallengeStore) FindValidByCode(ctx context.Context, userID, method, purpose, passcode string, now time.Time) (*domain.MFAChallenge, error) {
	args := m.Called(ctx, userID, method, purpose, passcode, now)
	if c, _ := args.Get(0).(*domain.MFAChallenge); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockChallengeStore) Consume(ctx context.Context, userID, attemptID string, now time.Time) error {
	return m.Called(ctx, userID, attemptID, now).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

// --- fixture ---

type fixture struct {
	users      *mockUserStore
	profiles   *mockProfileStore
	challenges *mockChallengeStore
	mailer     *mockMailer
	now        time.Time
	svc        Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:      &mockUserStore{},
		profiles:   &mockProfileStore{},
		challenges: &mockChallengeStore{},
		mailer:     &mockMailer{},
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ServiceDeps{
		UserRepo:      f.users,
		ProfileRepo:   f.profiles,
		ChallengeRepo: f.challenges,
		Mailer:        f.mailer,
		ChallengeTTL:  10 * time.Minute,
		Now:           func() time.Time { return f.now },
	})
	return f
}

var registerReq = domain.CreateUserRequest{
	Username: "alice",
	Password: "s3cure-pass",
	Email:    "alice@example.com",
}

// --- Register ---

func TestRegister_UsernameTaken(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{UserID: "u0"}, nil)

	_, err := f.svc.Register(context.Background(), registerReq)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.users.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u0"}, nil)

	_, err := f.svc.Register(context.Background(), registerReq)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, domain.ErrNotFound)

	var created *domain.User
	f.users.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)
	f.profiles.On("Put", mock.Anything, mock.Anything).Return(nil)

	var challenge *domain.MFAChallenge
	f.challenges.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		challenge = args.Get(1).(*domain.MFAChallenge)
	}).Return(nil)
	f.mailer.On("SendEmail", "alice@example.com", mock.Anything, mock.Anything).Return(nil)

	u, err := f.svc.Register(context.Background(), registerReq)

	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.False(t, u.EmailVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("s3cure-pass")))

	require.NotNil(t, challenge)
	assert.Equal(t, domain.PurposeVerification, challenge.Purpose)
	assert.Equal(t, domain.MethodEmail, challenge.Method)
	f.users.AssertNotCalled(t, "HardDelete", mock.Anything, mock.Anything)
}

func TestRegister_DeliveryFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, domain.ErrNotFound)

	var createdID string
	f.users.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		createdID = args.Get(1).(*domain.User).UserID
	}).Return(nil)
	f.profiles.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.challenges.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", "alice@example.com", mock.Anything, mock.Anything).
		Return(errors.New("smtp connection refused"))

	f.profiles.On("Delete", mock.Anything, mock.Anything).Return(nil)
	f.users.On("HardDelete", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), registerReq)

	require.Error(t, err)
	// Internal error, not a coded 400: delivery is on us, not the caller.
	assert.Equal(t, domain.CodeInternalError, domain.ErrorCode(err))
	f.users.AssertCalled(t, "HardDelete", mock.Anything, createdID)
	f.profiles.AssertCalled(t, "Delete", mock.Anything, createdID)
}

// --- ConfirmEmail ---

func TestConfirmEmail_Success(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1", Email: "alice@example.com"}, nil)
	f.challenges.On("FindValidByCode", mock.Anything, "u1", domain.MethodEmail, domain.PurposeVerification, "123456", f.now).
		Return(&domain.MFAChallenge{UserID: "u1", AttemptID: "a1", Code: "123456"}, nil)
	f.challenges.On("Consume", mock.Anything, "u1", "a1", f.now).Return(nil)
	f.users.On("Update", mock.Anything, "u1", map[string]interface{}{"email_verified": true}).Return(nil)

	err := f.svc.ConfirmEmail(context.Background(), ConfirmEmailRequest{Email: "alice@example.com", Code: "123456"})

	require.NoError(t, err)
	f.users.AssertExpectations(t)
}

func TestConfirmEmail_WrongCode(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1"}, nil)
	f.challenges.On("FindValidByCode", mock.Anything, "u1", domain.MethodEmail, domain.PurposeVerification, "999999", f.now).
		Return(nil, domain.ErrNotFound)

	err := f.svc.ConfirmEmail(context.Background(), ConfirmEmailRequest{Email: "alice@example.com", Code: "999999"})

	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidToken, domain.ErrorCode(err))
	f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- password recovery ---

func TestRequestPasswordRecovery_ReusesValidCode(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1", Email: "alice@example.com"}, nil)
	f.challenges.On("GetLatestValid", mock.Anything, "u1", domain.MethodEmail, domain.PurposeRecovery, f.now).
		Return(&domain.MFAChallenge{UserID: "u1", Code: "111222"}, nil)

	err := f.svc.RequestPasswordRecovery(context.Background(), RecoveryRequest{Email: "alice@example.com"})

	require.NoError(t, err)
	f.challenges.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestPasswordRecovery_IssuesAndEmails(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1", Email: "alice@example.com"}, nil)
	f.challenges.On("GetLatestValid", mock.Anything, "u1", domain.MethodEmail, domain.PurposeRecovery, f.now).
		Return(nil, domain.ErrNotFound)
	f.challenges.On("Put", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("SendEmail", "alice@example.com", mock.Anything, mock.Anything).Return(nil)

	err := f.svc.RequestPasswordRecovery(context.Background(), RecoveryRequest{Email: "alice@example.com"})

	require.NoError(t, err)
	f.mailer.AssertExpectations(t)
}

func TestResetPassword_Success(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(&domain.User{UserID: "u1"}, nil)
	f.challenges.On("FindValidByCode", mock.Anything, "u1", domain.MethodEmail, domain.PurposeRecovery, "123456", f.now).
		Return(&domain.MFAChallenge{UserID: "u1", AttemptID: "a1"}, nil)
	f.challenges.On("Consume", mock.Anything, "u1", "a1", f.now).Return(nil)

	var updates map[string]interface{}
	f.users.On("Update", mock.Anything, "u1", mock.Anything).Run(func(args mock.Arguments) {
		updates = args.Get(2).(map[string]interface{})
	}).Return(nil)

	err := f.svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Email:       "alice@example.com",
		Code:        "123456",
		NewPassword: "brand-new-pass",
	})

	require.NoError(t, err)
	hash, ok := updates["password_hash"].(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("brand-new-pass")))
}

// --- profile ---

func TestUpdateProfile_OnlyProvidedFields(t *testing.T) {
	f := newFixture(t)
	fullName := "Alice Tan"
	domicile := "Jakarta"

	var updates map[string]interface{}
	f.profiles.On("Update", mock.Anything, "u1", mock.Anything).Run(func(args mock.Arguments) {
		updates = args.Get(2).(map[string]interface{})
	}).Return(nil)
	f.profiles.On("Get", mock.Anything, "u1").Return(&domain.Profile{UserID: "u1", FullName: fullName, Domicile: domicile}, nil)

	p, err := f.svc.UpdateProfile(context.Background(), "u1", domain.UpdateProfileRequest{
		FullName: &fullName,
		Domicile: &domicile,
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"full_name": "Alice Tan", "domicile": "Jakarta"}, updates)
	assert.Equal(t, "Alice Tan", p.FullName)
}

func TestUpdateProfile_NoFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateProfile(context.Background(), "u1", domain.UpdateProfileRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	f.profiles.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- delete ---

func TestDeleteAccount_SoftDeletes(t *testing.T) {
	f := newFixture(t)
	f.users.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Enable: true}, nil)
	f.users.On("SoftDelete", mock.Anything, "u1").Return(nil)

	err := f.svc.DeleteAccount(context.Background(), "u1")

	require.NoError(t, err)
	f.users.AssertExpectations(t)
}
