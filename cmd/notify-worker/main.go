// Package main is the notification worker Lambda.
//
// It consumes the notification queue fed by the API's QueuePublisher and
// delivers each message in-process: purchase confirmations by email (with
// an email_log row) and order, error and stock alerts to Discord.
//
// Malformed messages are acknowledged and dropped. Delivery failures are
// reported as batch item failures so SQS redelivers only those records.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"valor/internal/bootstrap"
	"valor/internal/config"
	"valor/internal/db"
	"valor/internal/external"
	"valor/internal/notifications"
	"valor/internal/types"
)

// dispatcher decodes and delivers one queue message body.
type dispatcher interface {
	DispatchJSON(ctx context.Context, body []byte) error
}

type Handler struct {
	Dispatcher dispatcher
	Logger     *slog.Logger
}

// Handle processes one SQS batch with partial batch responses.
func (h *Handler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, record := range ev.Records {
		logger := h.Logger.With("message_id", record.MessageId)
		ctx := types.WithLogger(ctx, logger)

		err := h.Dispatcher.DispatchJSON(ctx, []byte(record.Body))
		switch {
		case err == nil:
			logger.InfoContext(ctx, "notification delivered")
		case errors.Is(err, notifications.ErrMalformedMessage):
			logger.ErrorContext(ctx, "dropping malformed notification", "error", err)
		default:
			logger.ErrorContext(ctx, "notification delivery failed", "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return resp, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg.LogLevel).With("component", "notify_worker")
	logger.Info("notify worker initializing (cold start)", "version", cfg.Build.Version)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	registry, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to build vendor clients", "error", err)
		os.Exit(1)
	}

	sink, err := bootstrap.NewDeliverySink(cfg, registry, db.NewEmailLogRepo(pool), types.RealClock{}, logger)
	if err != nil {
		logger.Error("failed to build delivery sink", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		Dispatcher: notifications.NewDispatcher(sink),
		Logger:     logger,
	}
	lambda.Start(handler.Handle)
}
