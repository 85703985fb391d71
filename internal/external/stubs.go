package external

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Stub implementations let the service boot in local/test mode without
// vendor credentials. Payment stubs report every payment as succeeded so the
// full fulfillment path can be exercised end to end.

type StubPaymentGateway struct {
	logger *slog.Logger
}

func NewStubPaymentGateway(logger *slog.Logger) *StubPaymentGateway {
	return &StubPaymentGateway{logger: logger}
}

func (s *StubPaymentGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	s.logger.InfoContext(ctx, "stub: RetrievePaymentIntent called", "payment_intent_id", id)
	return &PaymentIntent{ID: id, Status: PaymentIntentSucceeded, PaymentMethodTypes: []string{"card"}}, nil
}

func (s *StubPaymentGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: RetrieveCheckoutSession called", "session_id", id)
	return &CheckoutSession{
		ID:                 id,
		Status:             "complete",
		PaymentStatus:      SessionPaymentPaid,
		PaymentIntent:      "pi_stub_" + strings.TrimPrefix(id, "cs_"),
		PaymentMethodTypes: []string{"card"},
	}, nil
}

func (s *StubPaymentGateway) CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (*PaymentIntent, error) {
	s.logger.InfoContext(ctx, "stub: CreatePaymentIntent called", "amount_cents", p.AmountCents)
	id := fmt.Sprintf("pi_stub_%d", p.AmountCents)
	return &PaymentIntent{
		ID:           id,
		Status:       PaymentIntentRequiresMethod,
		Amount:       p.AmountCents,
		Currency:     currencyOrDefault(p.Currency),
		ClientSecret: id + "_secret_stub",
		Metadata:     p.Metadata,
	}, nil
}

func (s *StubPaymentGateway) CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error) {
	s.logger.InfoContext(ctx, "stub: CreateCheckoutSession called", "amount_cents", p.AmountCents)
	id := fmt.Sprintf("cs_stub_%d", p.AmountCents)
	return &CheckoutSession{ID: id, Status: "open", ClientSecret: id + "_secret_stub", Metadata: p.Metadata}, nil
}

type StubCardSetupGateway struct {
	logger *slog.Logger
}

func NewStubCardSetupGateway(logger *slog.Logger) *StubCardSetupGateway {
	return &StubCardSetupGateway{logger: logger}
}

func (s *StubCardSetupGateway) CreateInvoice(ctx context.Context, inv CardSetupInvoice) (*CreatedInvoice, error) {
	s.logger.InfoContext(ctx, "stub: CreateInvoice called", "invoice_id", inv.InvoiceID, "amount", inv.Amount)
	return &CreatedInvoice{InvoiceID: inv.InvoiceID, PaymentURL: inv.CallbackURL + "&transactionid=stub_" + inv.InvoiceID}, nil
}

func (s *StubCardSetupGateway) FinalizeInvoice(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	s.logger.InfoContext(ctx, "stub: FinalizeInvoice called", "transaction_id", req.TransactionID, "invoice_id", req.InvoiceID)
	return &FinalizeResult{
		Success:    true,
		Validation: CardSetupValidation{Valid: true, ApprovalCode: "STUB", Status: "approved"},
	}, nil
}

// StubWebhookVerifier accepts every payload.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Info("stub: Stripe webhook Verify called", "payload_len", len(payload))
	return nil
}

type StubEmailSender struct {
	logger *slog.Logger
}

func NewStubEmailSender(logger *slog.Logger) *StubEmailSender {
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg Email) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called", "to", msg.To, "subject", msg.Subject)
	return "msg_stub", nil
}

type StubDiscordPoster struct {
	logger *slog.Logger
}

func NewStubDiscordPoster(logger *slog.Logger) *StubDiscordPoster {
	return &StubDiscordPoster{logger: logger}
}

func (s *StubDiscordPoster) Post(ctx context.Context, msg DiscordMessage) error {
	title := ""
	if len(msg.Embeds) > 0 {
		title = msg.Embeds[0].Title
	}
	s.logger.InfoContext(ctx, "stub: Discord Post called", "title", title)
	return nil
}

var (
	_ PaymentGateway   = (*StubPaymentGateway)(nil)
	_ CardSetupGateway = (*StubCardSetupGateway)(nil)
	_ WebhookVerifier  = (*StubWebhookVerifier)(nil)
	_ EmailSender      = (*StubEmailSender)(nil)
	_ DiscordPoster    = (*StubDiscordPoster)(nil)
)
