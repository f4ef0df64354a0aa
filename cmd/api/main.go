package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelery/jobdeck/internal/auth"
	"github.com/avelery/jobdeck/internal/background"
	"github.com/avelery/jobdeck/internal/config"
	"github.com/avelery/jobdeck/internal/database"
	"github.com/avelery/jobdeck/internal/handlers"
	middlewareCustom "github.com/avelery/jobdeck/internal/middleware"
	"github.com/avelery/jobdeck/internal/repositories"
	"github.com/avelery/jobdeck/internal/routes"
	"github.com/avelery/jobdeck/internal/services"
	pkghttp "github.com/avelery/jobdeck/pkg/http"
	pkglogger "github.com/avelery/jobdeck/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories and in-memory stores
	userRepo := repositories.NewUserRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	attemptStore := repositories.NewMemoryAttemptStore()
	sessionStore := repositories.NewMemorySessionStore()

	auditLogger := pkglogger.NewAuditLogger(logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.EncryptionKey, cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayJitterMs,
	})

	// Optional SES alerts for sign-ins from unrecognized devices
	var alertSender services.AlertSender
	if cfg.Email.Enabled {
		emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		alertSender = emailService
	}

	// Services
	lockoutService := services.NewLockoutService(attemptStore, cfg.Lockout, logger)
	twoFactorService := services.NewTwoFactorService(twoFactorRepo, totpManager, logger, auditLogger, cfg.TwoFactor.BackupCodeCount)
	sessionService := services.NewSessionService(sessionStore, logger, auditLogger, cfg.Auth.SessionExpiry)
	authService := services.NewAuthService(
		userRepo,
		lockoutService,
		twoFactorService,
		sessionService,
		alertSender,
		tokenManager,
		timingDelay,
		logger,
		auditLogger,
	)

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	// Background cleanup of dead sessions and stale lockout counters
	cleanupManager := background.NewCleanupManager(
		sessionService,
		attemptStore,
		cfg.Lockout.AttemptWindow,
		logger,
		cfg.Auth.CleanupInterval,
	)

	// Router
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// No RealIP middleware: it would rewrite RemoteAddr from forwarding
	// headers before the trusted-proxy check could reject them. ipConfig is
	// the single source of client IP for lockout keys and rate limits.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, twoFactorHandler, sessionHandler, tokenManager, sessionService, ipConfig)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
