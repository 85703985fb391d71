package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"valor/internal/external"
	"valor/internal/types"
)

// Sink delivers notifications directly. A nil email sender or Discord poster
// turns that channel into a silent no-op.
type Sink struct {
	email    external.EmailSender
	discord  external.DiscordPoster
	renderer *Renderer
	emailLog types.EmailLogRepository
	clock    types.Clock
	logger   *slog.Logger
}

type SinkConfig struct {
	Email    external.EmailSender
	Discord  external.DiscordPoster
	Renderer *Renderer
	EmailLog types.EmailLogRepository
	Clock    types.Clock
	Logger   *slog.Logger
}

func NewSink(cfg SinkConfig) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Sink{
		email:    cfg.Email,
		discord:  cfg.Discord,
		renderer: cfg.Renderer,
		emailLog: cfg.EmailLog,
		clock:    clock,
		logger:   logger.With("component", "notification_sink"),
	}
}

// PurchaseConfirmation renders and sends the key email, then records it in
// the email log. The log entry is written even when no sender is configured.
func (s *Sink) PurchaseConfirmation(ctx context.Context, p Purchase) error {
	if s.renderer == nil {
		return errors.New("notifications: renderer not configured")
	}
	now := s.clock.Now()
	rendered, err := s.renderer.RenderPurchase(p, now)
	if err != nil {
		return err
	}

	var sendErr error
	if s.email != nil {
		msgID, err := s.email.Send(ctx, external.Email{
			To:       p.CustomerEmail,
			Subject:  rendered.Subject,
			HTMLBody: rendered.BodyHTML,
			TextBody: rendered.BodyText,
		})
		if err != nil {
			sendErr = fmt.Errorf("send confirmation email: %w", err)
		} else {
			s.logger.InfoContext(ctx, "confirmation email sent",
				"order_number", p.OrderNumber, "message_id", msgID)
		}
	} else {
		s.logger.InfoContext(ctx, "email not configured, confirmation not sent", "order_number", p.OrderNumber)
	}

	var logErr error
	if s.emailLog != nil {
		if err := s.emailLog.Record(ctx, types.EmailLogEntry{
			ToEmail:     p.CustomerEmail,
			Subject:     rendered.Subject,
			HTMLContent: rendered.BodyHTML,
			SentAt:      now,
		}); err != nil {
			logErr = fmt.Errorf("record email log: %w", err)
		}
	}
	return errors.Join(sendErr, logErr)
}

func (s *Sink) OrderAlert(ctx context.Context, a OrderAlert) error {
	return s.post(ctx, orderAlertMessage(a, s.clock.Now()))
}

func (s *Sink) ErrorAlert(ctx context.Context, a ErrorAlert) error {
	return s.post(ctx, errorAlertMessage(a, s.clock.Now()))
}

func (s *Sink) StockAlert(ctx context.Context, a StockAlert) error {
	return s.post(ctx, stockAlertMessage(a, s.clock.Now()))
}

func (s *Sink) post(ctx context.Context, msg external.DiscordMessage) error {
	if s.discord == nil {
		return nil
	}
	if err := s.discord.Post(ctx, msg); err != nil {
		return fmt.Errorf("post discord message: %w", err)
	}
	return nil
}

var _ Notifier = (*Sink)(nil)
