// Package main is the reconciliation Lambda, invoked on an EventBridge
// schedule. Each run re-verifies every pending order with its gateway and
// fulfills the ones that have since been paid, which covers lost webhooks
// and abandoned return pages.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"valor/internal/bootstrap"
	"valor/internal/config"
	"valor/internal/fulfillment"
)

type sweeper interface {
	ReprocessAllPending(ctx context.Context) (*fulfillment.SweepReport, error)
}

type Handler struct {
	Sweeper sweeper
	Logger  *slog.Logger
}

// Handle runs one sweep. Per-order failures are part of the report; only a
// failure to list pending orders fails the invocation.
func (h *Handler) Handle(ctx context.Context, ev events.CloudWatchEvent) (*fulfillment.SweepReport, error) {
	start := time.Now()
	h.Logger.InfoContext(ctx, "reconciliation sweep starting", "event_id", ev.ID)

	report, err := h.Sweeper.ReprocessAllPending(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
		return nil, err
	}

	h.Logger.InfoContext(ctx, "reconciliation sweep finished",
		"processed", report.Processed,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, e := range report.Errors {
		h.Logger.WarnContext(ctx, "order not reconciled", "detail", e)
	}
	return report, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg.LogLevel).With("component", "reconciler")
	logger.Info("reconciler initializing (cold start)", "version", cfg.Build.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	components, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build components", "error", err)
		os.Exit(1)
	}

	handler := &Handler{Sweeper: components.Orchestrator, Logger: logger}
	lambda.Start(handler.Handle)
}
