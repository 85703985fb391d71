package external

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Payments (Stripe)
// ---------------------------------------------------------------------------

// PaymentIntent is the subset of a Stripe PaymentIntent the storefront reads.
type PaymentIntent struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	ClientSecret       string            `json:"client_secret"`
	ReceiptEmail       string            `json:"receipt_email"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
	LatestCharge       string            `json:"latest_charge"`
}

// CheckoutSession is the subset of a Stripe Checkout Session the storefront reads.
type CheckoutSession struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	PaymentStatus      string            `json:"payment_status"`
	PaymentIntent      string            `json:"payment_intent"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	ClientSecret       string            `json:"client_secret"`
	CustomerEmail      string            `json:"customer_email"`
	Metadata           map[string]string `json:"metadata"`
}

// Stripe PaymentIntent statuses the orchestrator distinguishes.
const (
	PaymentIntentSucceeded      = "succeeded"
	PaymentIntentProcessing     = "processing"
	PaymentIntentRequiresAction = "requires_action"
	PaymentIntentRequiresMethod = "requires_payment_method"
	PaymentIntentCanceled       = "canceled"

	SessionPaymentPaid = "paid"
)

// Stripe event types handled by the webhook endpoint.
const (
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeRefunded           = "charge.refunded"
)

// CreatePaymentIntentParams describes a PaymentIntent for one order.
type CreatePaymentIntentParams struct {
	AmountCents  int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

// CreateCheckoutSessionParams describes an embedded Checkout Session for one order.
type CreateCheckoutSessionParams struct {
	LineItemName  string
	Description   string
	ImageURL      string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	ReturnURL     string
	Metadata      map[string]string
}

// PaymentGateway abstracts the Stripe REST calls used by checkout and
// payment verification.
type PaymentGateway interface {
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (*PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify returns nil when header is a valid signature of payload under secret.
	Verify(payload []byte, header string, secret string) error
}

// ---------------------------------------------------------------------------
// Payments (Card Setup)
// ---------------------------------------------------------------------------

// CardSetupInvoice is the create-invoice request body.
type CardSetupInvoice struct {
	Store       string              `json:"store"`
	InvoiceID   string              `json:"invoice_id"`
	Amount      string              `json:"amount"`
	Currency    string              `json:"currency"`
	Purchases   []CardSetupPurchase `json:"purchases"`
	Email       string              `json:"email"`
	CallbackURL string              `json:"callbackURL"`
	OrderInfo   string              `json:"orderinfo,omitempty"`
}

type CardSetupPurchase struct {
	Name string `json:"name"`
}

// CreatedInvoice is the result of a successful create-invoice call.
type CreatedInvoice struct {
	InvoiceID  string
	PaymentURL string
}

// FinalizeRequest identifies the payment to verify. TransactionID wins when set.
type FinalizeRequest struct {
	TransactionID string
	InvoiceID     string
}

// FinalizeResult is the finalize-invoice response.
type FinalizeResult struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Validation CardSetupValidation `json:"validation"`
}

type CardSetupValidation struct {
	Valid        bool   `json:"valid"`
	ApprovalCode string `json:"approval_code"`
	Status       string `json:"status"`
}

// Paid reports whether the gateway confirmed the payment.
func (r *FinalizeResult) Paid() bool {
	return r != nil && r.Success && r.Validation.Valid
}

// CardSetupGateway abstracts the Card Setup invoice API.
type CardSetupGateway interface {
	CreateInvoice(ctx context.Context, inv CardSetupInvoice) (*CreatedInvoice, error)
	FinalizeInvoice(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error)
}

// ---------------------------------------------------------------------------
// License key suppliers
// ---------------------------------------------------------------------------

type KeyFetchParams struct {
	OrderNumber   string
	CustomerEmail string
	VariantName   string
	ProductName   string
}

// KeyFetchResult carries either a key or the reason none was obtained.
type KeyFetchResult struct {
	Key string
	Err error
}

// KeySource fetches keys from per-product supplier APIs.
type KeySource interface {
	HasSource(productSlug string) bool
	Fetch(ctx context.Context, productSlug string, p KeyFetchParams) KeyFetchResult
}

// ---------------------------------------------------------------------------
// Notification channels
// ---------------------------------------------------------------------------

// Email is a fully rendered message.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailSender delivers rendered email. The returned id is provider specific
// and may be empty.
type EmailSender interface {
	Send(ctx context.Context, msg Email) (string, error)
}

// DiscordEmbed mirrors the Discord webhook embed object.
type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   *time.Time          `json:"timestamp,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordMessage is a webhook execution payload.
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds"`
}

// DiscordPoster delivers messages to a Discord channel webhook.
type DiscordPoster interface {
	Post(ctx context.Context, msg DiscordMessage) error
}
