package fulfillment

import "time"

// Trigger names the entry point that invoked the orchestrator.
type Trigger string

const (
	TriggerStripeWebhook     Trigger = "stripe_webhook"
	TriggerClientCompletion  Trigger = "client_completion"
	TriggerCardSetupCallback Trigger = "cardsetup_callback"
	TriggerManual            Trigger = "manual"
	TriggerBulk              Trigger = "bulk"
)

// Outcome is the result of one invocation.
type Outcome string

const (
	// OutcomeCompleted means the order is paid and holds a key, either from
	// this call or an earlier one (see Result.AlreadyCompleted).
	OutcomeCompleted Outcome = "completed"
	// OutcomePending means payment could not be confirmed yet. Nothing changed.
	OutcomePending Outcome = "pending"
	// OutcomeDeclined means the gateway reported a final failure. The order
	// stays pending so the customer can retry.
	OutcomeDeclined Outcome = "declined"
	OutcomeRefunded Outcome = "refunded"
	OutcomeError    Outcome = "error"
)

// ReferenceKind selects how the order is resolved.
type ReferenceKind string

const (
	RefPaymentIntent   ReferenceKind = "payment_intent"
	RefCheckoutSession ReferenceKind = "checkout_session"
	RefOrderID         ReferenceKind = "order_id"
)

// Reference identifies the order and carries trigger-specific evidence.
type Reference struct {
	Kind  ReferenceKind
	Value string

	// TransactionID is the Card Setup transaction id from a callback.
	TransactionID string

	// PreVerified is set by the webhook handler for signed success events.
	// Verification against the gateway is skipped.
	PreVerified   bool
	PaymentMethod string
	// Metadata is merged into the order on success, e.g. the payment
	// intent behind a completed checkout session.
	Metadata map[string]any
}

func PaymentIntentRef(id string) Reference   { return Reference{Kind: RefPaymentIntent, Value: id} }
func CheckoutSessionRef(id string) Reference { return Reference{Kind: RefCheckoutSession, Value: id} }
func OrderRef(id string) Reference           { return Reference{Kind: RefOrderID, Value: id} }

// Result is returned for every non-error invocation.
type Result struct {
	OrderID          string     `json:"order_id"`
	OrderNumber      string     `json:"order_number"`
	LicenseKey       string     `json:"license_key,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Outcome          Outcome    `json:"outcome"`
	AlreadyCompleted bool       `json:"already_completed"`
	// GatewayStatus is the raw gateway status behind a pending or declined outcome.
	GatewayStatus string `json:"gateway_status,omitempty"`
}

// SweepReport aggregates a bulk reprocess. Errors keep listing order.
type SweepReport struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// RefundRequest moves a paid order to refunded. Exactly one of
// PaymentIntentID or OrderID identifies the order.
type RefundRequest struct {
	PaymentIntentID string
	OrderID         string
	RefundID        string
	Reason          string
}
