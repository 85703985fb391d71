package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valor/internal/fulfillment"
	"valor/internal/types"
)

func orderRouter(f *fakeFulfiller) http.Handler {
	r := chi.NewRouter()
	NewOrderHandler(f, discardLogger()).RegisterRoutes(r)
	return r
}

func TestCompleteOrder_StatusMapping(t *testing.T) {
	expires := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     *fulfillment.Result
		err        error
		wantStatus int
		wantKey    string
	}{
		{
			name:       "completed",
			result:     &fulfillment.Result{OrderNumber: "JC-1", LicenseKey: "ABCDE-FGHJK-LMNPQ-RSTUV", ExpiresAt: &expires, Outcome: fulfillment.OutcomeCompleted},
			wantStatus: http.StatusOK,
			wantKey:    "ABCDE-FGHJK-LMNPQ-RSTUV",
		},
		{
			name:       "pending",
			result:     &fulfillment.Result{OrderNumber: "JC-1", Outcome: fulfillment.OutcomePending, GatewayStatus: "processing"},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "declined",
			result:     &fulfillment.Result{OrderNumber: "JC-1", Outcome: fulfillment.OutcomeDeclined, GatewayStatus: "requires_payment_method"},
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "unknown order",
			err:        types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "gateway error",
			err:        types.NewAppError(types.ErrCodeUpstreamStripe, "Stripe rejected the request", nil),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "refunded",
			err:        types.NewAppError(types.ErrCodeConflictRefunded, "Order has been refunded", nil),
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFulfiller{result: tt.result, err: tt.err}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/complete-order", strings.NewReader(`{"paymentIntentId":"pi_123"}`))
			orderRouter(f).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			require.Len(t, f.completes, 1)
			assert.Equal(t, fulfillment.TriggerClientCompletion, f.completes[0].Trigger)
			assert.Equal(t, fulfillment.PaymentIntentRef("pi_123"), f.completes[0].Ref)

			if tt.err == nil {
				var body completionResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.wantKey, body.LicenseKey)
				assert.Equal(t, tt.result.Outcome == fulfillment.OutcomeCompleted, body.Success)
				assert.Equal(t, string(tt.result.Outcome), body.Status)
			}
		})
	}
}

func TestCompleteOrder_ReferenceAliasAndMissing(t *testing.T) {
	f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomeCompleted}}
	rec := httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/complete-order", strings.NewReader(`{"paymentReferenceId":"pi_alias"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pi_alias", f.completes[0].Ref.Value)

	rec = httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/complete-order", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeValidationReference))
	assert.Len(t, f.completes, 1)
}

func TestCardSetupCallback_TransactionAliases(t *testing.T) {
	for _, alias := range transactionAliases {
		t.Run(alias, func(t *testing.T) {
			f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomeCompleted}}
			rec := httptest.NewRecorder()
			orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cardsetup/callback?order_id=o-1&"+alias+"=TX-9", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, f.completes, 1)
			assert.Equal(t, fulfillment.TriggerCardSetupCallback, f.completes[0].Trigger)
			assert.Equal(t, fulfillment.Reference{Kind: fulfillment.RefOrderID, Value: "o-1", TransactionID: "TX-9"}, f.completes[0].Ref)
		})
	}
}

func TestCardSetupCallback_FirstAliasWins(t *testing.T) {
	f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomePending}}
	rec := httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cardsetup/callback?order_id=o-1&reference=LATE&transaction_id=EARLY", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "EARLY", f.completes[0].Ref.TransactionID)
}

func TestCardSetupCallback_WithoutTransactionPolls(t *testing.T) {
	f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomePending}}
	rec := httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cardsetup/callback?order_id=o-1", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, fulfillment.OrderRef("o-1"), f.completes[0].Ref)

	rec = httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cardsetup/callback", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCardSetupVerify(t *testing.T) {
	f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomeCompleted, LicenseKey: "K"}}
	rec := httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cardsetup/verify", strings.NewReader(`{"orderId":"o-2"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fulfillment.OrderRef("o-2"), f.completes[0].Ref)

	rec = httptest.NewRecorder()
	orderRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cardsetup/verify", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
