package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"valor/internal/types"
)

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrCodeValidationReference, http.StatusBadRequest},
		{types.ErrCodeNotFoundOrder, http.StatusNotFound},
		{types.ErrCodePaymentPending, http.StatusAccepted},
		{types.ErrCodePaymentDeclined, http.StatusPaymentRequired},
		{types.ErrCodeConflictRefunded, http.StatusConflict},
		{types.ErrCodeUpstreamStripe, http.StatusBadGateway},
		{types.ErrCodeInternalKeyAllocation, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))

			Error(rec, req, types.NewAppErrorWithDetails(tt.code, "msg", errors.New("internal cause"), map[string]any{"k": "v"}))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body APIErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != string(tt.code) || body.Error.RequestID != "req-1" || body.Error.Details["k"] != "v" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestError_GenericErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("leaked cause: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		PaymentIntentID string `json:"paymentIntentId"`
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"paymentIntentId":"pi_1"}`, false},
		{"extra fields tolerated", `{"paymentIntentId":"pi_1","extra":true}`, false},
		{"empty", ``, true},
		{"syntax", `{"paymentIntentId":`, true},
		{"wrong type", `{"paymentIntentId":12}`, true},
		{"two values", `{"paymentIntentId":"a"}{"paymentIntentId":"b"}`, true},
		{"too large", `{"paymentIntentId":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var dst body
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr {
				if types.CodeOf(err) != types.ErrCodeValidationInvalidJSON {
					t.Errorf("err = %v, want validation_invalid_json", err)
				}
				return
			}
			if err != nil || dst.PaymentIntentID != "pi_1" {
				t.Errorf("err = %v, dst = %+v", err, dst)
			}
		})
	}
}
