package fulfillment

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"valor/internal/types"
)

// ReprocessOrder runs the fulfillment sequence for one order on operator request.
func (o *Orchestrator) ReprocessOrder(ctx context.Context, orderID string) (*Result, error) {
	return o.Complete(ctx, TriggerManual, OrderRef(orderID))
}

// ReprocessAllPending re-verifies every pending order. Orders are processed
// with bounded concurrency and a failure never stops the sweep.
func (o *Orchestrator) ReprocessAllPending(ctx context.Context) (*SweepReport, error) {
	pending, err := o.orders.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	failures := make([]string, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SweepWorkers)
	for i := range pending {
		g.Go(func() error {
			failures[i] = o.reprocessOne(gctx, &pending[i])
			return nil
		})
	}
	_ = g.Wait()

	report := &SweepReport{Errors: []string{}}
	for _, msg := range failures {
		if msg == "" {
			report.Processed++
			continue
		}
		report.Failed++
		report.Errors = append(report.Errors, msg)
	}

	types.LoggerFromContext(ctx, o.logger).InfoContext(ctx, "pending sweep finished",
		"total", len(pending),
		"processed", report.Processed,
		"failed", report.Failed,
	)
	return report, nil
}

// reprocessOne returns "" on success or the report line for a failure.
func (o *Orchestrator) reprocessOne(ctx context.Context, order *types.Order) string {
	if !hasPaymentReference(order) {
		return fmt.Sprintf("Order %s: No payment intent ID", order.OrderNumber)
	}

	res, err := o.Complete(ctx, TriggerBulk, OrderRef(order.ID))
	if err != nil {
		return fmt.Sprintf("Order %s: %s", order.OrderNumber, errorMessage(err))
	}
	if res.Outcome != OutcomeCompleted {
		return fmt.Sprintf("Order %s: Payment status is %s", order.OrderNumber, res.GatewayStatus)
	}
	return ""
}

func hasPaymentReference(order *types.Order) bool {
	return (order.StripePaymentIntentID != nil && *order.StripePaymentIntentID != "") ||
		(order.StripeCheckoutSessionID != nil && *order.StripeCheckoutSessionID != "") ||
		order.IsCardSetup()
}
