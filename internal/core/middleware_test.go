package core

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"valor/internal/types"
)

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger, defaultRedactedHeaders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("User-Agent", "Stripe/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, leaked := range []string{"deadbeef", "secret-token"} {
		if strings.Contains(out, leaked) {
			t.Errorf("log leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "Stripe/1.0") || !strings.Contains(out, `"status":418`) {
		t.Errorf("log missing fields: %s", out)
	}
}

func TestRequestLogger_InjectsScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestIDMiddleware(RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types.LoggerFromContext(r.Context(), nil).Info("inside handler")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.Contains(first, "inside handler") || !strings.Contains(first, `"request_id":"req-42"`) {
		t.Errorf("handler log line = %s", first)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("listed origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://shop.example")
		NewCORSMiddleware([]string{"https://shop.example"})(next).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
			t.Errorf("allow-origin = %q", got)
		}
	})

	t.Run("unlisted origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		NewCORSMiddleware([]string{"https://shop.example"})(next).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow-origin = %q, want empty", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewCORSMiddleware([]string{"*"})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestCompressionMiddleware(t *testing.T) {
	payload := strings.Repeat(`{"orderNumber":"JC-M7X2K9-AB12"},`, 100)
	h := CompressionMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if string(body) != payload {
		t.Error("decompressed body mismatch")
	}
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, found := types.GetAdmin(r.Context()); !found {
			t.Error("admin session missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		verifier AdminVerifier
		header   string
		want     int
		code     types.ErrorCode
	}{
		{"no verifier", nil, "Bearer x", http.StatusForbidden, types.ErrCodePermissionAdmin},
		{"missing header", stubVerifier{}, "", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"wrong scheme", stubVerifier{}, "Basic abc", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"expired", stubVerifier{err: types.NewAppError(types.ErrCodeAuthTokenExpired, "Session expired", nil)}, "Bearer x", http.StatusUnauthorized, types.ErrCodeAuthTokenExpired},
		{"not admin", stubVerifier{session: types.AdminSession{Username: "u"}}, "bearer x", http.StatusForbidden, types.ErrCodePermissionAdmin},
		{"valid", stubVerifier{session: types.AdminSession{Username: "admin", IsAdmin: true}}, "Bearer x", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &Server{Logger: testLogger(), Admin: tt.verifier}
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.RequireAdmin(ok).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.code != "" && !strings.Contains(rec.Body.String(), string(tt.code)) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.code)
			}
		})
	}
}
