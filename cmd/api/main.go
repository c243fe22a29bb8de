package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmonyhall/lessons-payments/internal/api/router"
	appconfig "github.com/harmonyhall/lessons-payments/internal/config"
	"github.com/harmonyhall/lessons-payments/internal/customers"
	"github.com/harmonyhall/lessons-payments/internal/gateway"
	"github.com/harmonyhall/lessons-payments/internal/lessons"
	"github.com/harmonyhall/lessons-payments/internal/observability/metrics"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

func main() {
	// Load configuration; a missing .env is fine in deployed environments.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting lessons payments API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.StripeSecretKey == "" {
		logger.Error("STRIPE_SECRET_KEY is not set")
		os.Exit(1)
	}

	// Initialize gateway and services
	gatewayMetrics := metrics.NewGatewayMetrics(nil)
	stripeGateway := gateway.NewStripeGateway(cfg.StripeSecretKey, logger, gatewayMetrics, cfg.GatewayRetryAttempts)

	customersService := customers.NewService(stripeGateway, logger)
	lessonsService := lessons.NewService(stripeGateway, logger).
		WithChargePageLimit(cfg.ChargePageLimit).
		WithFeeLookupConcurrency(cfg.FeeLookupConcurrency)

	// Initialize handlers
	customersHandler := customers.NewHandler(customersService, logger)
	lessonsHandler := lessons.NewHandler(lessonsService, logger).
		WithReportWindowHours(cfg.ReportWindowHours)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		CustomersHandler:   customersHandler,
		LessonsHandler:     lessonsHandler,
		PublishableKey:     cfg.StripePublishableKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsHandler:     promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
