package fulfillment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"valor/internal/types"
)

// Refund moves a paid order to refunded. The assigned key is left in place.
// Refunding an already refunded order succeeds without changes.
func (o *Orchestrator) Refund(ctx context.Context, trigger Trigger, req RefundRequest) (order *types.Order, err error) {
	ctx, span := o.tracer.Start(ctx, "fulfillment.Refund", trace.WithAttributes(
		attribute.String("fulfillment.trigger", string(trigger)),
	))
	defer func() {
		outcome := OutcomeRefunded
		if err != nil {
			outcome = OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.metrics.RecordOutcome(ctx, string(trigger), string(outcome))
	}()

	switch {
	case req.OrderID != "":
		order, err = o.resolve(ctx, OrderRef(req.OrderID))
	case req.PaymentIntentID != "":
		order, err = o.resolve(ctx, PaymentIntentRef(req.PaymentIntentID))
	default:
		err = types.NewAppError(types.ErrCodeValidationReference, "Order ID or payment intent ID is required", nil)
	}
	if err != nil {
		return nil, err
	}

	log := types.LoggerFromContext(ctx, o.logger).With(
		"trigger", string(trigger),
		"order_id", order.ID,
		"order_number", order.OrderNumber,
	)

	if order.Status == types.OrderStatusRefunded {
		log.InfoContext(ctx, "order already refunded")
		return order, nil
	}
	if !order.Status.IsFulfilled() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictTransition,
			"Only paid orders can be refunded", nil,
			map[string]any{"status": string(order.Status)})
	}

	meta := types.Metadata{types.MetaRefundedAt: o.clock.Now().UTC().Format(time.RFC3339)}
	if req.RefundID != "" {
		meta[types.MetaRefundID] = req.RefundID
	}
	if req.Reason != "" {
		meta[types.MetaRefundReason] = req.Reason
	}

	updated, err := o.orders.UpdateStatus(ctx, order.ID, types.StatusUpdate{
		Status:      types.OrderStatusRefunded,
		AllowedFrom: []types.OrderStatus{types.OrderStatusPaid, types.OrderStatusCompleted},
		Metadata:    meta,
	})
	if err != nil {
		if errors.Is(err, types.ErrTransitionRejected) {
			if current, gerr := o.orders.GetByID(ctx, order.ID); gerr == nil && current != nil && current.Status == types.OrderStatusRefunded {
				return current, nil
			}
		}
		return nil, err
	}

	log.InfoContext(ctx, "order refunded", "refund_id", req.RefundID)
	return updated, nil
}
