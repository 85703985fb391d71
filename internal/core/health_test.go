package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || decodeHealth(t, rec).Status != "healthy" {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleHealth_Probes(t *testing.T) {
	healthy := ProbeFunc{ProbeName: "database", Fn: func(context.Context) error { return nil }}
	failing := ProbeFunc{ProbeName: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}
	panicking := ProbeFunc{ProbeName: "queue", Fn: func(context.Context) error { panic("nil client") }}
	slow := ProbeFunc{ProbeName: "slow", Fn: func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	}}

	tests := []struct {
		name   string
		probes []HealthProbe
		want   int
		bad    string
	}{
		{"all healthy", []HealthProbe{healthy}, http.StatusOK, ""},
		{"one failing", []HealthProbe{healthy, failing}, http.StatusServiceUnavailable, "redis"},
		{"panic is contained", []HealthProbe{healthy, panicking}, http.StatusServiceUnavailable, "queue"},
	}
	if !testing.Short() {
		tests = append(tests, struct {
			name   string
			probes []HealthProbe
			want   int
			bad    string
		}{"deadline", []HealthProbe{healthy, slow}, http.StatusServiceUnavailable, "slow"})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.HealthProbes = tt.probes
			rec := httptest.NewRecorder()
			srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			resp := decodeHealth(t, rec)
			if resp.Components["database"].Status != "healthy" {
				t.Errorf("database = %+v", resp.Components["database"])
			}
			if tt.bad != "" && resp.Components[tt.bad].Status != "unhealthy" {
				t.Errorf("%s = %+v", tt.bad, resp.Components[tt.bad])
			}
		})
	}
}
