package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/newsinsight/api/internal/application/auth"
	"github.com/newsinsight/api/internal/application/mfa"
	"github.com/newsinsight/api/internal/application/user"
	"github.com/newsinsight/api/internal/config"
	"github.com/newsinsight/api/internal/domain"
	"github.com/newsinsight/api/internal/transport/http/handler"
	appmiddleware "github.com/newsinsight/api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw, optionalAuthMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
		optionalAuthMw = appmiddleware.OptionalAuth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
		optionalAuthMw = authMw
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	mfaSvc := mfa.NewService(mfa.ServiceDeps{
		SettingsRepo:  deps.SettingsRepo,
		ChallengeRepo: deps.ChallengeRepo,
		DeviceRepo:    deps.DeviceRepo,
		UserRepo:      deps.UserRepo,
		ProfileRepo:   deps.ProfileRepo,
		TempTokens:    deps.TempTokens,
		Mailer:        deps.Mailer,
		SMSSender:     deps.SMSSender,
		TOTPIssuer:    cfg.TOTPIssuer,
		ChallengeTTL:  cfg.ChallengeTTL,
		TrustTTL:      cfg.DeviceTrustTTL,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:      deps.UserRepo,
		ProfileRepo:   deps.ProfileRepo,
		SettingsRepo:  deps.SettingsRepo,
		DeviceRepo:    deps.DeviceRepo,
		TempTokens:    deps.TempTokens,
		Verifier:      mfaSvc,
		Google:        deps.GoogleVerifier,
		JWTProvider:   deps.JWTProvider,
		SessionExpiry: cfg.SessionExpiry,
		OAuthExpiry:   cfg.OAuthExpiry,
		TempTokenTTL:  cfg.ChallengeTTL,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:      deps.UserRepo,
		ProfileRepo:   deps.ProfileRepo,
		ChallengeRepo: deps.ChallengeRepo,
		Mailer:        deps.Mailer,
		ChallengeTTL:  cfg.ChallengeTTL,
	})

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(authSvc)
	userH := handler.NewUserHandler(userSvc)
	mfaH := handler.NewMFAHandler(mfaSvc, authSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/auth/register", userH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/auth/google", sessionH.GoogleLogin)
		r.With(sensitiveRL.Limit).Post("/auth/confirm-email", userH.ConfirmEmail)
		r.With(sensitiveRL.Limit).Post("/auth/password-recovery/{action}", userH.PasswordRecovery)

		// Login-completion routes: no session yet, the temp token carries
		// identity. send-code also serves logged-in verification flows.
		r.With(sensitiveRL.Limit, optionalAuthMw).Post("/mfa/send-code", mfaH.SendCode)
		r.With(sensitiveRL.Limit).Post("/mfa/verify-code", mfaH.VerifyCode)
		r.With(sensitiveRL.Limit).Post("/mfa/verify-login", mfaH.VerifyLogin)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/auth/account", sessionH.Account)
			r.Delete("/auth/account", userH.DeleteAccount)
			r.Get("/auth/profile", userH.GetProfile)
			r.Put("/auth/profile", userH.UpdateProfile)

			r.Get("/mfa/status", mfaH.Status)
			r.Post("/mfa/totp/setup", mfaH.SetupTOTP)
			r.Post("/mfa/totp/verify", mfaH.VerifyTOTP)
			r.Post("/mfa/email/enable", mfaH.EnableEmail)
			r.Delete("/mfa/method/{method}", mfaH.DisableMethod)
			r.Delete("/mfa/trusted-device", mfaH.UntrustDevice)
			r.Get("/mfa/backup-codes", mfaH.BackupCodes)
			r.Post("/mfa/backup-codes/regenerate", mfaH.RegenerateBackupCodes)

			// ── Admin routes ─────────────────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Delete("/admin/users/{userID}", userH.AdminDeleteUser)
			})
		})
	})

	return r
}
