package fulfillment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valor/internal/external"
	"valor/internal/types"
)

func TestReprocessAllPending_IsolatesFailures(t *testing.T) {
	h := newHarness(t)

	paid := h.stripeOrder("VAL-4001", "pi_ok")
	h.payments.setIntent("pi_ok", external.PaymentIntentSucceeded)
	h.stripeOrder("VAL-4002", "pi_slow")
	h.payments.setIntent("pi_slow", external.PaymentIntentProcessing)
	h.store.addOrder(types.Order{OrderNumber: "VAL-4003", ProductID: h.product.ID, VariantID: h.variant.ID})
	h.stripeOrder("VAL-4004", "pi_gone")
	h.stripeOrder("VAL-4005", "pi_declined")
	h.payments.setIntent("pi_declined", external.PaymentIntentRequiresMethod)

	report, err := h.orch.ReprocessAllPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 4, report.Failed)
	assert.Equal(t, []string{
		"Order VAL-4002: Payment status is processing",
		"Order VAL-4003: No payment intent ID",
		"Order VAL-4004: No such payment_intent",
		"Order VAL-4005: Payment status is requires_payment_method",
	}, report.Errors)

	assert.Equal(t, types.OrderStatusPaid, h.store.get(paid.ID).Status)
	assert.Equal(t, "bulk", h.store.get(paid.ID).Metadata.String(types.MetaFulfilledBy))
}

func TestReprocessAllPending_Empty(t *testing.T) {
	h := newHarness(t)

	report, err := h.orch.ReprocessAllPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Zero(t, report.Failed)
	assert.NotNil(t, report.Errors)
}

func TestReprocessAllPending_ManyOrders(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *Config) { cfg.SweepWorkers = 3 })
	for i := 0; i < 25; i++ {
		pi := fmt.Sprintf("pi_many_%d", i)
		h.stripeOrder(fmt.Sprintf("VAL-5%03d", i), pi)
		h.payments.setIntent(pi, external.PaymentIntentSucceeded)
	}

	report, err := h.orch.ReprocessAllPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, report.Processed)
	assert.Empty(t, report.Errors)

	pending, err := h.store.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReprocessOrder(t *testing.T) {
	h := newHarness(t)
	order := h.stripeOrder("VAL-4100", "pi_manual")
	h.payments.setIntent("pi_manual", external.PaymentIntentSucceeded)

	res, err := h.orch.ReprocessOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "manual", h.store.get(order.ID).Metadata.String(types.MetaFulfilledBy))

	again, err := h.orch.ReprocessOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	assert.Equal(t, res.LicenseKey, again.LicenseKey)
}
