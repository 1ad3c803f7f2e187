package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/gatepass/pkg/config"
	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/diagnosis/gatepass/services/gateway/internal/handlers"
	"github.com/diagnosis/gatepass/services/gateway/internal/proxy"
)

func main() {
	cfg := config.Load()

	authProxy := proxy.NewServiceProxy("auth", cfg.Services.AuthURL, cfg.Services.ProxyTimeout)
	eventsProxy := proxy.NewServiceProxy("events", cfg.Services.EventsURL, cfg.Services.ProxyTimeout)
	passesProxy := proxy.NewServiceProxy("passes", cfg.Services.PassesURL, cfg.Services.ProxyTimeout)
	auditProxy := proxy.NewServiceProxy("audit", cfg.Services.AuditURL, cfg.Services.ProxyTimeout)

	h := handlers.New(authProxy, eventsProxy, passesProxy, auditProxy)
	r := handlers.Router(h, cfg.Services.CORSOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", cfg.Server.Port,
		"auth", cfg.Services.AuthURL,
		"events", cfg.Services.EventsURL,
		"passes", cfg.Services.PassesURL,
		"audit", cfg.Services.AuditURL,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}
