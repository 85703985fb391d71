// Package main is the entry point for the Valor storefront API.
//
// It loads configuration, connects Postgres (and Redis when configured),
// builds the vendor clients and the fulfillment orchestrator, mounts the
// checkout, completion, webhook and admin routes on the core chassis and
// serves HTTP until SIGINT or SIGTERM.
//
// Notifications are enqueued on SQS when SQS_NOTIFICATIONS is set and are
// otherwise delivered in-process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"valor/internal/api/handlers"
	"valor/internal/bootstrap"
	"valor/internal/config"
	"valor/internal/core"
	"valor/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := bootstrap.NewLogger(cfg.LogLevel)
	logger.Info("valor API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	components, err := bootstrap.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	srv, err := newServer(cfg, logger, servicesFrom(components))
	if err != nil {
		_ = components.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(components.Close)

	return runHTTPServer(srv, cfg, logger)
}

// adminAuth issues and verifies admin sessions.
type adminAuth interface {
	handlers.AdminLogin
	core.AdminVerifier
}

// services are the domain collaborators the routes are built from.
type services struct {
	Orders   handlers.Reprocessor
	Checkout handlers.CheckoutService
	Details  handlers.OrderDetailsReader
	Admin    adminAuth
	Verifier external.WebhookVerifier
	Metrics  core.MetricsCollector
	Probes   []core.HealthProbe
}

// newServer mounts every route on a fresh chassis.
func newServer(cfg *config.Config, logger *slog.Logger, svc services) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Admin = svc.Admin
	srv.Metrics = svc.Metrics
	srv.HealthProbes = svc.Probes

	webhook := handlers.NewStripeWebhookHandler(svc.Verifier, svc.Orders, cfg.Stripe.WebhookSecret, logger)
	orders := handlers.NewOrderHandler(svc.Orders, logger)
	checkoutHandler := handlers.NewCheckoutHandler(svc.Checkout, srv.Validator, logger)
	admin := handlers.NewAdminHandler(svc.Admin, svc.Orders, svc.Details, srv.Validator, logger).
		WithSweepTimeout(cfg.Fulfillment.SweepTimeout)

	srv.PublicRoutes = append(srv.PublicRoutes,
		webhook.RegisterRoutes,
		orders.RegisterRoutes,
		checkoutHandler.RegisterRoutes,
	)
	srv.AdminPublicRoutes = append(srv.AdminPublicRoutes, admin.RegisterPublicRoutes)
	srv.AdminRoutes = append(srv.AdminRoutes, admin.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// servicesFrom adapts the bootstrapped graph to the route set.
func servicesFrom(c *bootstrap.Components) services {
	svc := services{
		Orders:   c.Orchestrator,
		Checkout: c.Checkout,
		Details:  c.Orders,
		Admin:    c.Admin,
		Verifier: c.Registry.StripeVerifier,
	}
	if c.RequestMetrics != nil {
		svc.Metrics = c.RequestMetrics
	}
	for _, p := range c.Probes {
		svc.Probes = append(svc.Probes, core.ProbeFunc{ProbeName: p.Name, Fn: p.Check})
	}
	return svc
}

// runHTTPServer serves until a shutdown signal, then drains in-flight
// requests within Server.ShutdownTimeout.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
