package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"valor/internal/auth"
	"valor/internal/checkout"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type completeCall struct {
	Trigger fulfillment.Trigger
	Ref     fulfillment.Reference
}

// fakeFulfiller records calls and returns canned answers.
type fakeFulfiller struct {
	mu        sync.Mutex
	completes []completeCall
	refunds   []fulfillment.RefundRequest
	reprocess []string
	sweeps    int
	// sweepCtx is the context ReprocessAllPending was called with.
	sweepCtx context.Context

	result    *fulfillment.Result
	err       error
	refunded  *types.Order
	refundErr error
	report    *fulfillment.SweepReport
	sweepErr  error
}

func (f *fakeFulfiller) Complete(_ context.Context, trigger fulfillment.Trigger, ref fulfillment.Reference) (*fulfillment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes = append(f.completes, completeCall{Trigger: trigger, Ref: ref})
	return f.result, f.err
}

func (f *fakeFulfiller) Refund(_ context.Context, _ fulfillment.Trigger, req fulfillment.RefundRequest) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	return f.refunded, f.refundErr
}

func (f *fakeFulfiller) ReprocessOrder(_ context.Context, id string) (*fulfillment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reprocess = append(f.reprocess, id)
	return f.result, f.err
}

func (f *fakeFulfiller) ReprocessAllPending(ctx context.Context) (*fulfillment.SweepReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	f.sweepCtx = ctx
	return f.report, f.sweepErr
}

var _ Reprocessor = (*fakeFulfiller)(nil)

type fakeCheckout struct {
	lastReq    checkout.Request
	lastOrigin string
	err        error
	coupon     *checkout.CouponCheck
}

func (f *fakeCheckout) CreatePaymentIntent(_ context.Context, req checkout.Request) (*checkout.PaymentIntentResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.PaymentIntentResult{ClientSecret: "pi_1_secret", OrderID: "o-1", OrderNumber: "JC-M7X2K9-AB12", FinalAmount: 1999}, nil
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, req checkout.Request, origin string) (*checkout.CheckoutSessionResult, error) {
	f.lastReq, f.lastOrigin = req, origin
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.CheckoutSessionResult{ClientSecret: "cs_secret", SessionID: "cs_1", OrderID: "o-1", OrderNumber: "JC-M7X2K9-AB12"}, nil
}

func (f *fakeCheckout) CreateCardSetupInvoice(_ context.Context, req checkout.Request) (*checkout.CardSetupInvoiceResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.CardSetupInvoiceResult{Success: true, OrderID: "o-1", OrderNumber: "JC-M7X2K9-AB12", RedirectURL: "https://pay.example/inv"}, nil
}

func (f *fakeCheckout) ValidateCoupon(context.Context, string, string) (*checkout.CouponCheck, error) {
	return f.coupon, f.err
}

type fakeLogin struct {
	session *auth.Session
	err     error
}

func (f fakeLogin) Login(context.Context, string, string) (*auth.Session, error) {
	return f.session, f.err
}

type fakeDetails struct {
	details *types.OrderDetails
	err     error
	asked   []string
}

func (f *fakeDetails) GetDetails(_ context.Context, id string) (*types.OrderDetails, error) {
	f.asked = append(f.asked, id)
	return f.details, f.err
}
