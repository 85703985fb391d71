// Package notifications delivers the best-effort side effects of a completed
// order: the purchase confirmation email and the operator Discord alerts.
//
// Delivery is either direct (Sink) or deferred through SQS (QueuePublisher,
// drained by the notify worker via Dispatcher). Callers log and swallow
// returned errors; a notification failure never changes order state.
package notifications

import (
	"context"
	"time"
)

// Purchase is the data rendered into the confirmation email.
type Purchase struct {
	CustomerEmail string     `json:"customer_email"`
	OrderNumber   string     `json:"order_number"`
	ProductName   string     `json:"product_name"`
	VariantName   string     `json:"variant_name"`
	LicenseKey    string     `json:"license_key"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
}

// OrderAlert announces a completed order to operators. RemainingStock is nil
// for variants served entirely by generated keys.
type OrderAlert struct {
	OrderNumber     string `json:"order_number"`
	ProductName     string `json:"product_name"`
	VariantName     string `json:"variant_name"`
	CustomerEmail   string `json:"customer_email"`
	AmountCents     int64  `json:"amount_cents"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	StripePaymentID string `json:"stripe_payment_id,omitempty"`
	RemainingStock  *int   `json:"remaining_stock,omitempty"`
}

// ErrorAlert reports an order that needs manual attention.
type ErrorAlert struct {
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	Error         string `json:"error"`
	Context       string `json:"context,omitempty"`
}

type StockAlert struct {
	ProductName    string `json:"product_name"`
	VariantName    string `json:"variant_name"`
	RemainingStock int    `json:"remaining_stock"`
}

// Notifier is implemented by Sink (direct delivery) and QueuePublisher.
type Notifier interface {
	PurchaseConfirmation(ctx context.Context, p Purchase) error
	OrderAlert(ctx context.Context, a OrderAlert) error
	ErrorAlert(ctx context.Context, a ErrorAlert) error
	StockAlert(ctx context.Context, a StockAlert) error
}

// Kind identifies the payload carried by a queued Message.
type Kind string

const (
	KindPurchaseConfirmation Kind = "purchase_confirmation"
	KindOrderAlert           Kind = "order_alert"
	KindErrorAlert           Kind = "error_alert"
	KindStockAlert           Kind = "stock_alert"
)

// Message is the SQS envelope. Exactly one payload field is set, matching Kind.
type Message struct {
	ID        string      `json:"id"`
	Kind      Kind        `json:"kind"`
	TraceID   string      `json:"trace_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Purchase  *Purchase   `json:"purchase,omitempty"`
	Order     *OrderAlert `json:"order,omitempty"`
	Error     *ErrorAlert `json:"error,omitempty"`
	Stock     *StockAlert `json:"stock,omitempty"`
}
