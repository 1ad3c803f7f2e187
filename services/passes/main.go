package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/diagnosis/gatepass/internal/http/middleware"
	"github.com/diagnosis/gatepass/pkg/cache"
	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/database"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/passes/internal/handlers"
	"github.com/diagnosis/gatepass/services/passes/internal/repository"
	"github.com/diagnosis/gatepass/services/passes/internal/service"
)

func main() {
	cfg := config.Load()
	if err := ratelimit.SetTrustedProxies(cfg.Services.TrustedProxies); err != nil {
		logger.Error("Invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store, err := cache.Open(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	eventBus, err := events.Connect(cfg.NATS.URL, "passes")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	visitorRepo := repository.NewVisitorRepository(pool)
	eventLookup := repository.NewEventLookup(pool)

	passService := service.NewPassService(visitorRepo, eventLookup, eventBus, cfg)

	h := handlers.New(passService)

	limiter := func(prefix string) func(http.Handler) http.Handler {
		return ratelimit.NewRateLimiter(store, ratelimit.RateLimitConfig{
			Requests: cfg.Verify.RateLimit,
			Window:   cfg.Verify.RateWindow,
			Prefix:   prefix,
		}).Middleware()
	}

	r := handlers.Router(h, handlers.RouterOptions{
		JWTSecret:     cfg.Auth.JWTSecret,
		VerifyLimit:   limiter("rl:verify"),
		RegisterLimit: limiter("rl:register"),
		RetrieveLimit: limiter("rl:retrieve"),
		Idempotency:   mw.Idempotency(store),
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

		logger.Info("Shutting down passes service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Passes service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting passes service", "port", cfg.Server.Port, "public_url", cfg.Pass.PublicBaseURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Passes service error", "error", err)
		os.Exit(1)
	}
}
