package fulfillment

import (
	"context"
	"errors"

	"valor/internal/external"
	"valor/internal/types"
)

type verdict int

const (
	verdictPaid verdict = iota
	verdictPending
	verdictDeclined
)

type verification struct {
	verdict       verdict
	status        string
	paymentMethod string
	metadata      types.Metadata
}

var errNoPaymentReference = types.NewAppError(types.ErrCodeValidationReference, "No payment intent ID", nil)

// verify asks the owning gateway whether the order has been paid. Gateway
// outages and timeouts are inconclusive and yield verdictPending.
func (o *Orchestrator) verify(ctx context.Context, order *types.Order, ref Reference) (verification, error) {
	if ref.PreVerified {
		return verification{verdict: verdictPaid, status: "succeeded", paymentMethod: ref.PaymentMethod, metadata: ref.Metadata}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
	defer cancel()

	switch {
	case order.IsCardSetup() || ref.TransactionID != "":
		return o.verifyCardSetup(ctx, order, ref)
	case order.StripeCheckoutSessionID != nil && (ref.Kind == RefCheckoutSession || order.StripePaymentIntentID == nil):
		return o.verifyCheckoutSession(ctx, *order.StripeCheckoutSessionID)
	case order.StripePaymentIntentID != nil:
		return o.verifyPaymentIntent(ctx, *order.StripePaymentIntentID)
	default:
		return verification{}, errNoPaymentReference
	}
}

func (o *Orchestrator) verifyPaymentIntent(ctx context.Context, id string) (verification, error) {
	pi, err := o.payments.RetrievePaymentIntent(ctx, id)
	if err != nil {
		return gatewayFailure(err)
	}

	v := verification{status: pi.Status, paymentMethod: firstOr(pi.PaymentMethodTypes, types.PaymentMethodCard)}
	switch pi.Status {
	case external.PaymentIntentSucceeded:
		v.verdict = verdictPaid
	case external.PaymentIntentRequiresMethod, external.PaymentIntentCanceled:
		v.verdict = verdictDeclined
	default:
		// processing, requires_action, requires_confirmation, requires_capture
		v.verdict = verdictPending
	}
	return v, nil
}

func (o *Orchestrator) verifyCheckoutSession(ctx context.Context, id string) (verification, error) {
	cs, err := o.payments.RetrieveCheckoutSession(ctx, id)
	if err != nil {
		return gatewayFailure(err)
	}

	v := verification{status: cs.PaymentStatus, paymentMethod: firstOr(cs.PaymentMethodTypes, types.PaymentMethodCard)}
	switch {
	case cs.PaymentStatus == external.SessionPaymentPaid:
		v.verdict = verdictPaid
		if cs.PaymentIntent != "" {
			v.metadata = types.Metadata{types.MetaStripePaymentIntent: cs.PaymentIntent}
		}
	case cs.Status == "expired":
		v.verdict = verdictDeclined
		v.status = cs.Status
	default:
		v.verdict = verdictPending
	}
	return v, nil
}

// verifyCardSetup finalizes the invoice. With a transaction id from the
// redirect a negative answer is final; a bare invoice poll stays pending.
func (o *Orchestrator) verifyCardSetup(ctx context.Context, order *types.Order, ref Reference) (verification, error) {
	req := external.FinalizeRequest{TransactionID: ref.TransactionID}
	if req.TransactionID == "" {
		req.InvoiceID = order.CardSetupInvoiceID()
	}

	res, err := o.cardSetup.FinalizeInvoice(ctx, req)
	if err != nil {
		if types.IsCode(err, types.ErrCodeValidationReference) {
			return verification{}, err
		}
		o.logger.WarnContext(ctx, "card setup unreachable", "order_id", order.ID, "error", err)
		return verification{verdict: verdictPending, status: "unreachable"}, nil
	}

	if res.Paid() {
		meta := types.Metadata{}
		if ref.TransactionID != "" {
			meta[types.MetaCardSetupTransaction] = ref.TransactionID
		}
		if res.Validation.ApprovalCode != "" {
			meta[types.MetaCardSetupApprovalCode] = res.Validation.ApprovalCode
		}
		return verification{
			verdict:       verdictPaid,
			status:        res.Validation.Status,
			paymentMethod: types.PaymentMethodCardSetup,
			metadata:      meta,
		}, nil
	}

	status := res.Validation.Status
	if status == "" {
		status = res.Error
	}
	if status == "" {
		status = "unpaid"
	}
	if ref.TransactionID != "" {
		return verification{verdict: verdictDeclined, status: status}, nil
	}
	return verification{verdict: verdictPending, status: status}, nil
}

func gatewayFailure(err error) (verification, error) {
	switch {
	case types.IsCode(err, types.ErrCodePaymentDeclined):
		return verification{verdict: verdictDeclined, status: "declined"}, nil
	case external.IsUnreachable(err), errors.Is(err, context.DeadlineExceeded):
		return verification{verdict: verdictPending, status: "unreachable"}, nil
	}
	return verification{}, err
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}
