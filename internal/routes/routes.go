package routes

import (
	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/handlers"
	"github.com/avelery/jobdeck/internal/middleware"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	sessionHandler *handlers.SessionHandler,
	tokenManager *auth.TokenManager,
	sessionChecker auth.SessionChecker,
	ipConfig *pkghttp.IPConfig,
) {
	// Rate limiting for the unauthenticated auth endpoints, keyed on the
	// trust-gated client IP
	rateLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit(), ipConfig)

	// Public routes - no authentication required
	router.With(rateLimit).Post("/auth/login", authHandler.Login)
	router.With(rateLimit).Post("/auth/refresh", authHandler.RefreshToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, sessionChecker))

		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/auth/2fa", twoFactorHandler.Status)
		r.Post("/auth/2fa", twoFactorHandler.Action)

		r.Get("/auth/sessions", sessionHandler.List)
		r.Delete("/auth/sessions", sessionHandler.Revoke)
	})
}
