package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valor/internal/checkout"
	"valor/internal/core"
	"valor/internal/types"
)

const validBody = `{"productSlug":"temp-spoofer","variantId":"0b6a3c1e-3f7c-4b8e-9d1a-2c3e4f5a6b7c","customerEmail":"buyer@example.com","couponCode":"SAVE20"}`

func checkoutRouter(svc *fakeCheckout) http.Handler {
	r := chi.NewRouter()
	NewCheckoutHandler(svc, core.NewValidator(), discardLogger()).RegisterRoutes(r)
	return r
}

func TestCheckoutEndpoints(t *testing.T) {
	for _, path := range []string{"/checkout/payment-intent", "/checkout/session", "/checkout/cardsetup"} {
		t.Run(path, func(t *testing.T) {
			svc := &fakeCheckout{}
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(validBody))
			req.Header.Set("Origin", "https://shop.example")
			rec := httptest.NewRecorder()
			checkoutRouter(svc).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "JC-M7X2K9-AB12")
			assert.Equal(t, checkout.Request{
				ProductSlug:   "temp-spoofer",
				VariantID:     "0b6a3c1e-3f7c-4b8e-9d1a-2c3e4f5a6b7c",
				CustomerEmail: "buyer@example.com",
				CouponCode:    "SAVE20",
			}, svc.lastReq)
		})
	}
}

func TestCheckoutSession_PassesOrigin(t *testing.T) {
	svc := &fakeCheckout{}
	req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(validBody))
	req.Header.Set("Origin", "https://shop.example")
	checkoutRouter(svc).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "https://shop.example", svc.lastOrigin)
}

func TestCheckout_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
		code types.ErrorCode
	}{
		{"bad email", strings.Replace(validBody, "buyer@example.com", "nope", 1), nil, http.StatusBadRequest, types.ErrCodeValidationInvalidEmail},
		{"missing variant", `{"productSlug":"x","customerEmail":"buyer@example.com"}`, nil, http.StatusBadRequest, types.ErrCodeValidationMissingField},
		{"malformed", `{`, nil, http.StatusBadRequest, types.ErrCodeValidationInvalidJSON},
		{"maintenance", validBody, types.NewAppError(types.ErrCodeMaintenance, "Store is in maintenance mode", nil), http.StatusServiceUnavailable, types.ErrCodeMaintenance},
		{"gateway", validBody, types.NewAppError(types.ErrCodeUpstreamStripe, "Stripe unavailable", nil), http.StatusBadGateway, types.ErrCodeUpstreamStripe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCheckout{err: tt.err}
			rec := httptest.NewRecorder()
			checkoutRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/payment-intent", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), string(tt.code))
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	svc := &fakeCheckout{coupon: &checkout.CouponCheck{Valid: true, DiscountAmount: 400, FinalAmount: 1599}}
	rec := httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/coupons/validate",
		strings.NewReader(`{"code":"SAVE20","variantId":"0b6a3c1e-3f7c-4b8e-9d1a-2c3e4f5a6b7c"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"discountAmount":400,"finalAmount":1599}`, rec.Body.String())

	rec = httptest.NewRecorder()
	checkoutRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/coupons/validate", strings.NewReader(`{"code":"SAVE20"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
