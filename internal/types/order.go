package types

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"

	// OrderStatusCompleted is written by older storefront versions and means
	// the same as OrderStatusPaid. New transitions never write it.
	OrderStatusCompleted OrderStatus = "completed"
)

// IsFulfilled reports whether the order has been paid and holds a key.
func (s OrderStatus) IsFulfilled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

// Metadata keys written onto orders.
const (
	MetaCouponID              = "coupon_id"
	MetaStripePaymentIntent   = "stripe_payment_intent_id"
	MetaCouponCode            = "coupon_code"
	MetaOriginalAmount        = "original_amount"
	MetaDiscountAmount        = "discount_amount"
	MetaCardSetupInvoiceID    = "cardsetup_invoice_id"
	MetaCardSetupTransaction  = "cardsetup_transaction_id"
	MetaCardSetupApprovalCode = "cardsetup_approval_code"
	MetaCardSetupError        = "cardsetup_error"
	MetaRefundID              = "refund_id"
	MetaRefundedAt            = "refunded_at"
	MetaRefundReason          = "refund_reason"
	MetaKeySource             = "key_source"
	MetaFulfilledBy           = "fulfilled_by"
)

// Payment method labels stored on orders.
const (
	PaymentMethodCard      = "card"
	PaymentMethodCardSetup = "cardsetup"
)

// Order is a purchase of one product variant. The gateway reference is one of
// StripePaymentIntentID, StripeCheckoutSessionID or the Card Setup invoice id
// held in Metadata.
type Order struct {
	ID                      string      `json:"id"`
	OrderNumber             string      `json:"order_number"`
	CustomerEmail           string      `json:"customer_email"`
	ProductID               string      `json:"product_id"`
	VariantID               string      `json:"variant_id"`
	LicenseKeyID            *string     `json:"license_key_id,omitempty"`
	AmountCents             int64       `json:"amount_cents"`
	Currency                string      `json:"currency"`
	Status                  OrderStatus `json:"status"`
	StripePaymentIntentID   *string     `json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID *string     `json:"stripe_checkout_session_id,omitempty"`
	PaymentMethod           *string     `json:"payment_method,omitempty"`
	Metadata                Metadata    `json:"metadata"`
	CreatedAt               time.Time   `json:"created_at"`
	PaidAt                  *time.Time  `json:"paid_at,omitempty"`
}

// CardSetupInvoiceID returns the invoice id recorded at checkout, falling
// back to the order number that is used as the invoice id.
func (o *Order) CardSetupInvoiceID() string {
	if id := o.Metadata.String(MetaCardSetupInvoiceID); id != "" {
		return id
	}
	return o.OrderNumber
}

// IsCardSetup reports whether the order was placed through Card Setup.
func (o *Order) IsCardSetup() bool {
	return o.PaymentMethod != nil && *o.PaymentMethod == PaymentMethodCardSetup
}

// NewOrder carries the fields set when checkout creates a pending order.
type NewOrder struct {
	CustomerEmail           string
	ProductID               string
	VariantID               string
	AmountCents             int64
	Currency                string
	PaymentMethod           *string
	StripePaymentIntentID   *string
	StripeCheckoutSessionID *string
	Metadata                Metadata
}

// StatusUpdate describes one status transition. AllowedFrom, when set, makes
// the write conditional on the current status.
type StatusUpdate struct {
	Status        OrderStatus
	AllowedFrom   []OrderStatus
	LicenseKeyID  *string
	PaymentMethod *string
	Metadata      Metadata
}

// OrderDetails is an order joined with its product, variant and key.
type OrderDetails struct {
	Order      Order       `json:"order"`
	Product    *Product    `json:"product,omitempty"`
	Variant    *Variant    `json:"variant,omitempty"`
	LicenseKey *LicenseKey `json:"license_key,omitempty"`
}
