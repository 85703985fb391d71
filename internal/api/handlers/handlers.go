// Package handlers contains the HTTP handlers for the storefront API:
// payment webhooks, order completion, checkout and the admin console.
package handlers

import (
	"context"
	"net/http"

	"valor/internal/auth"
	"valor/internal/checkout"
	"valor/internal/core"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

// Fulfiller is the slice of the orchestrator the public endpoints use.
type Fulfiller interface {
	Complete(ctx context.Context, trigger fulfillment.Trigger, ref fulfillment.Reference) (*fulfillment.Result, error)
	Refund(ctx context.Context, trigger fulfillment.Trigger, req fulfillment.RefundRequest) (*types.Order, error)
}

// Reprocessor is the admin view of the orchestrator.
type Reprocessor interface {
	Fulfiller
	ReprocessOrder(ctx context.Context, orderID string) (*fulfillment.Result, error)
	ReprocessAllPending(ctx context.Context) (*fulfillment.SweepReport, error)
}

type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, req checkout.Request) (*checkout.PaymentIntentResult, error)
	CreateCheckoutSession(ctx context.Context, req checkout.Request, origin string) (*checkout.CheckoutSessionResult, error)
	CreateCardSetupInvoice(ctx context.Context, req checkout.Request) (*checkout.CardSetupInvoiceResult, error)
	ValidateCoupon(ctx context.Context, code, variantID string) (*checkout.CouponCheck, error)
}

type OrderDetailsReader interface {
	GetDetails(ctx context.Context, id string) (*types.OrderDetails, error)
}

type AdminLogin interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
}

var (
	_ Reprocessor     = (*fulfillment.Orchestrator)(nil)
	_ CheckoutService = (*checkout.Service)(nil)
	_ AdminLogin      = (*auth.AdminAuthenticator)(nil)
)

// decodeAndValidate reads the JSON body into dst and runs struct validation.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *core.Validator, dst any) error {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return v.ValidateStruct(dst)
}
