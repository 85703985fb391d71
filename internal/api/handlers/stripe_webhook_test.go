package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"valor/internal/external"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookHandler(f *fakeFulfiller, secret string) *StripeWebhookHandler {
	return NewStripeWebhookHandler(&external.StripeVerifier{}, f, types.SecretString(secret), discardLogger())
}

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func eventPayload(eventType string, object string) []byte {
	return []byte(`{"id":"evt_1","object":"event","type":"` + eventType + `","data":{"object":` + object + `}}`)
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) webhookAck {
	t.Helper()
	var ack webhookAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	return ack
}

func TestStripeWebhook_PaymentIntentSucceeded(t *testing.T) {
	f := &fakeFulfiller{result: &fulfillment.Result{OrderNumber: "JC-1", Outcome: fulfillment.OutcomeCompleted}}
	h := newWebhookHandler(f, testWebhookSecret)

	payload := eventPayload("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent","status":"succeeded","payment_method_types":["card"]}`)
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(t, payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhookAck{Received: true}, decodeAck(t, rec))
	require.Len(t, f.completes, 1)
	assert.Equal(t, fulfillment.TriggerStripeWebhook, f.completes[0].Trigger)
	assert.Equal(t, fulfillment.Reference{
		Kind:          fulfillment.RefPaymentIntent,
		Value:         "pi_123",
		PreVerified:   true,
		PaymentMethod: "card",
	}, f.completes[0].Ref)
}

func TestStripeWebhook_SignatureEnforcement(t *testing.T) {
	payload := eventPayload("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent"}`)

	tests := []struct {
		name    string
		request func(t *testing.T) *http.Request
		secret  string
		code    types.ErrorCode
	}{
		{
			name: "tampered body",
			request: func(t *testing.T) *http.Request {
				header := signedRequest(t, payload, testWebhookSecret).Header.Get("Stripe-Signature")
				tampered := bytes.Replace(payload, []byte("pi_123"), []byte("pi_999"), 1)
				req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(tampered))
				req.Header.Set("Stripe-Signature", header)
				return req
			},
			secret: testWebhookSecret,
			code:   types.ErrCodeAuthSignatureInvalid,
		},
		{
			name: "wrong secret",
			request: func(t *testing.T) *http.Request {
				return signedRequest(t, payload, "whsec_other")
			},
			secret: testWebhookSecret,
			code:   types.ErrCodeAuthSignatureInvalid,
		},
		{
			name: "missing header",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
			},
			secret: testWebhookSecret,
			code:   types.ErrCodeAuthSignatureInvalid,
		},
		{
			name: "secret not configured",
			request: func(t *testing.T) *http.Request {
				return signedRequest(t, payload, testWebhookSecret)
			},
			secret: "",
			code:   types.ErrCodeAuthWebhookSecretUnset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFulfiller{}
			rec := httptest.NewRecorder()
			newWebhookHandler(f, tt.secret).Handle(rec, tt.request(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), string(tt.code))
			assert.Empty(t, f.completes, "no fulfillment for unverifiable webhook")
		})
	}
}

func TestStripeWebhook_CheckoutSession(t *testing.T) {
	t.Run("paid session carries payment intent", func(t *testing.T) {
		f := &fakeFulfiller{result: &fulfillment.Result{Outcome: fulfillment.OutcomeCompleted}}
		payload := eventPayload("checkout.session.completed",
			`{"id":"cs_1","object":"checkout.session","payment_status":"paid","payment_intent":"pi_77","payment_method_types":["card"]}`)
		rec := httptest.NewRecorder()
		newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, f.completes, 1)
		ref := f.completes[0].Ref
		assert.Equal(t, fulfillment.RefCheckoutSession, ref.Kind)
		assert.Equal(t, "cs_1", ref.Value)
		assert.True(t, ref.PreVerified)
		assert.Equal(t, "pi_77", ref.Metadata[types.MetaStripePaymentIntent])
	})

	t.Run("unpaid session is acknowledged only", func(t *testing.T) {
		f := &fakeFulfiller{}
		payload := eventPayload("checkout.session.completed",
			`{"id":"cs_2","object":"checkout.session","payment_status":"unpaid"}`)
		rec := httptest.NewRecorder()
		newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.completes)
	})
}

func TestStripeWebhook_ChargeRefunded(t *testing.T) {
	f := &fakeFulfiller{refunded: &types.Order{Status: types.OrderStatusRefunded}}
	payload := eventPayload("charge.refunded",
		`{"id":"ch_1","object":"charge","payment_intent":"pi_123","refunds":{"object":"list","data":[{"id":"re_1","object":"refund","reason":"requested_by_customer"}]}}`)
	rec := httptest.NewRecorder()
	newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhookAck{Received: true}, decodeAck(t, rec))
	assert.Empty(t, f.completes, "refunds never allocate keys")
	require.Len(t, f.refunds, 1)
	assert.Equal(t, fulfillment.RefundRequest{
		PaymentIntentID: "pi_123",
		RefundID:        "re_1",
		Reason:          "requested_by_customer",
	}, f.refunds[0])
}

func TestStripeWebhook_ProcessingFailureStillAcknowledged(t *testing.T) {
	f := &fakeFulfiller{err: types.NewAppError(types.ErrCodeInternalDB, "failed to update order", errors.New("conn reset"))}
	payload := eventPayload("payment_intent.succeeded", `{"id":"pi_123","object":"payment_intent"}`)
	rec := httptest.NewRecorder()
	newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhookAck{Received: true, Error: "Internal error"}, decodeAck(t, rec))
}

func TestStripeWebhook_UnknownOrderAcknowledged(t *testing.T) {
	f := &fakeFulfiller{err: types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)}
	payload := eventPayload("payment_intent.succeeded", `{"id":"pi_foreign","object":"payment_intent"}`)
	rec := httptest.NewRecorder()
	newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhookAck{Received: true}, decodeAck(t, rec))
}

func TestStripeWebhook_UnhandledEventType(t *testing.T) {
	f := &fakeFulfiller{}
	payload := eventPayload("customer.created", `{"id":"cus_1","object":"customer"}`)
	rec := httptest.NewRecorder()
	newWebhookHandler(f, testWebhookSecret).Handle(rec, signedRequest(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.completes)
	assert.Empty(t, f.refunds)
}
