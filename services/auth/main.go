package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/diagnosis/gatepass/internal/http/middleware"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/database"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/auth/internal/handlers"
	"github.com/diagnosis/gatepass/services/auth/internal/repository"
	"github.com/diagnosis/gatepass/services/auth/internal/service"
)

func main() {
	cfg := config.Load()
	if err := ratelimit.SetTrustedProxies(cfg.Services.TrustedProxies); err != nil {
		logger.Error("Invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.Connect(cfg.NATS.URL, "auth")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	userRepo := repository.NewUserRepository(pool)
	attempts := repository.NewRateLimitRepository(pool)

	authService, err := service.NewAuthService(userRepo, attempts, eventBus, cfg)
	if err != nil {
		logger.Error("Failed to initialise auth service", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.BootstrapEnabled && cfg.Auth.BootstrapPassword != "" {
		created, err := authService.Bootstrap(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword)
		if err != nil {
			logger.Error("Failed to bootstrap CSO account", "error", err)
			os.Exit(1)
		}
		if created {
			logger.Info("Bootstrapped CSO account", "username", cfg.Auth.BootstrapUsername)
		}
	}

	go cleanupAttempts(ctx, attempts)

	// Coarse per-address cap; failed-credential counting lives in the service.
	loginLimiter := ratelimit.NewRateLimiter(attempts, ratelimit.RateLimitConfig{
		Requests: cfg.Auth.LoginRateLimit * 5,
		Window:   cfg.Auth.LoginRateWindow,
		Prefix:   "rl:login-ip",
	})

	h := handlers.New(authService)
	r := handlers.Router(h, handlers.RouterOptions{
		JWTSecret:  cfg.Auth.JWTSecret,
		LoginLimit: loginLimiter.Middleware(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mw.Ready(pool.Ping)(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down auth service...")
		stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Auth service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting auth service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

func cleanupAttempts(ctx context.Context, store repository.AttemptStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("Rate limit cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Expired rate limit rows removed", "rows", n)
			}
		}
	}
}
