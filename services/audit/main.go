package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/database"
	"github.com/diagnosis/gatepass/pkg/events"
	"github.com/diagnosis/gatepass/pkg/logger"
	mw "github.com/diagnosis/gatepass/pkg/middleware"
	"github.com/diagnosis/gatepass/services/audit/internal/handlers"
	"github.com/diagnosis/gatepass/services/audit/internal/repository"
	"github.com/diagnosis/gatepass/services/audit/internal/service"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.NATS.URL == "" {
		logger.Warn("NATS_URL is empty; the audit service only records events published in its own process")
	}
	eventBus, err := events.Connect(cfg.NATS.URL, "audit")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	auditService := service.NewAuditService(repository.NewAuditRepository(pool), eventBus)
	if err := auditService.Start(); err != nil {
		logger.Error("Failed to subscribe to events", "error", err)
		os.Exit(1)
	}

	r := handlers.Router(handlers.New(auditService), cfg.Auth.JWTSecret)

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

		logger.Info("Shutting down audit service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Audit service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting audit service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Audit service error", "error", err)
		os.Exit(1)
	}
}
