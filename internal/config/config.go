package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	SessionExpiry     time.Duration // password+MFA logins
	OAuthExpiry       time.Duration // Google-originated logins

	ChallengeTTL   time.Duration // email/SMS one-time codes and temp tokens
	DeviceTrustTTL time.Duration

	TOTPIssuer string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	GoogleClientID string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users          string
	Profiles       string
	MFASettings    string
	MFAAttempts    string
	TrustedDevices string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:          getEnv("DYNAMO_TABLE_USERS", "users"),
			Profiles:       getEnv("DYNAMO_TABLE_PROFILES", "profiles"),
			MFASettings:    getEnv("DYNAMO_TABLE_MFA_SETTINGS", "mfa_settings"),
			MFAAttempts:    getEnv("DYNAMO_TABLE_MFA_ATTEMPTS", "mfa_attempts"),
			TrustedDevices: getEnv("DYNAMO_TABLE_TRUSTED_DEVICES", "trusted_devices"),
		},

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		SessionExpiry:     time.Duration(getEnvInt("SESSION_EXPIRY_MINUTES", 120)) * time.Minute,
		OAuthExpiry:       time.Duration(getEnvInt("OAUTH_EXPIRY_MINUTES", 1440)) * time.Minute,

		ChallengeTTL:   time.Duration(getEnvInt("MFA_CHALLENGE_TTL_MINUTES", 10)) * time.Minute,
		DeviceTrustTTL: time.Duration(getEnvInt("DEVICE_TRUST_TTL_DAYS", 30)) * 24 * time.Hour,

		TOTPIssuer: getEnv("TOTP_ISSUER", "NewsInsight"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@newsinsight.io"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSRegion: getEnv("SNS_REGION", "us-east-1"),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
