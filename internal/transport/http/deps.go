package http

import (
	"github.com/newsinsight/api/internal/infrastructure/dynamo"
	"github.com/newsinsight/api/internal/infrastructure/google"
	jwtinfra "github.com/newsinsight/api/internal/infrastructure/jwt"
	redisinfra "github.com/newsinsight/api/internal/infrastructure/redis"
	"github.com/newsinsight/api/internal/infrastructure/smtp"
	"github.com/newsinsight/api/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo       *dynamo.UserRepo
	ProfileRepo    *dynamo.ProfileRepo
	SettingsRepo   *dynamo.MFASettingsRepo
	ChallengeRepo  *dynamo.ChallengeRepo
	DeviceRepo     *dynamo.TrustedDeviceRepo
	TempTokens     *redisinfra.TempTokenStore
	Mailer         smtp.Mailer
	SMSSender      sns.SMSSender
	JWTProvider    *jwtinfra.Provider
	GoogleVerifier *google.Verifier
}
