package fulfillment

import (
	"context"
	"log/slog"

	"valor/internal/notifications"
	"valor/internal/types"
)

// notifyCompleted sends the customer email and the operator alerts for a
// freshly fulfilled order. Failures are logged only.
func (o *Orchestrator) notifyCompleted(ctx context.Context, log *slog.Logger, order *types.Order, details *types.OrderDetails, key *types.LicenseKey, v verification) {
	if o.notifier == nil {
		return
	}
	productName, variantName := names(details)

	if err := o.notifier.PurchaseConfirmation(ctx, notifications.Purchase{
		CustomerEmail: order.CustomerEmail,
		OrderNumber:   order.OrderNumber,
		ProductName:   productName,
		VariantName:   variantName,
		LicenseKey:    key.LicenseKey,
		ExpiresAt:     key.ExpiresAt,
		AmountCents:   order.AmountCents,
	}); err != nil {
		log.WarnContext(ctx, "purchase confirmation failed", "error", err)
	}

	var remaining *int
	if n, err := o.keys.CountUnused(ctx, order.VariantID); err != nil {
		log.WarnContext(ctx, "failed to count remaining stock", "error", err)
	} else if n > 0 {
		remaining = &n
	}

	if err := o.notifier.OrderAlert(ctx, notifications.OrderAlert{
		OrderNumber:     order.OrderNumber,
		ProductName:     productName,
		VariantName:     variantName,
		CustomerEmail:   order.CustomerEmail,
		AmountCents:     order.AmountCents,
		PaymentMethod:   v.paymentMethod,
		StripePaymentID: stripeReference(order, v),
		RemainingStock:  remaining,
	}); err != nil {
		log.WarnContext(ctx, "order alert failed", "error", err)
	}

	if remaining != nil && *remaining <= o.cfg.LowStockThreshold {
		if err := o.notifier.StockAlert(ctx, notifications.StockAlert{
			ProductName:    productName,
			VariantName:    variantName,
			RemainingStock: *remaining,
		}); err != nil {
			log.WarnContext(ctx, "stock alert failed", "error", err)
		}
	}
}

func (o *Orchestrator) notifyError(ctx context.Context, log *slog.Logger, order *types.Order, trigger Trigger, cause error) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.ErrorAlert(ctx, notifications.ErrorAlert{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		Error:         errorMessage(cause),
		Context:       "Fulfillment via " + string(trigger),
	}); err != nil {
		log.WarnContext(ctx, "error alert failed", "error", err)
	}
}

func names(details *types.OrderDetails) (product, variant string) {
	product, variant = "Unknown Product", "Unknown Variant"
	if details.Product != nil {
		product = details.Product.Name
	}
	if details.Variant != nil {
		variant = details.Variant.Name
	}
	return product, variant
}

func stripeReference(order *types.Order, v verification) string {
	switch {
	case order.StripePaymentIntentID != nil:
		return *order.StripePaymentIntentID
	case v.metadata.String(types.MetaStripePaymentIntent) != "":
		return v.metadata.String(types.MetaStripePaymentIntent)
	case order.StripeCheckoutSessionID != nil:
		return *order.StripeCheckoutSessionID
	}
	return ""
}
