package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"valor/internal/types"
)

// SupplierEndpoint is one per-product supplier API.
type SupplierEndpoint struct {
	URL    string
	APIKey string
	Method string // defaults to POST
}

// keyFields are the response fields that may carry the key, in priority order.
var keyFields = []string{"key", "license_key", "licenseKey", "code", "license"}

// ErrNoKeyInResponse is returned when a supplier answered 2xx without a key.
var ErrNoKeyInResponse = errors.New("no license key found in API response")

// KeySourceClient fetches license keys from supplier APIs keyed by product slug.
type KeySourceClient struct {
	base      *BaseClient
	endpoints map[string]SupplierEndpoint
	timeout   time.Duration
	logger    *slog.Logger
}

// NewKeySourceClient keeps only endpoints with both a URL and an API key.
// Supplier calls issue a key and are never retried; local generation is the
// fallback.
func NewKeySourceClient(httpClient *http.Client, endpoints map[string]SupplierEndpoint, timeout time.Duration, logger *slog.Logger) *KeySourceClient {
	base := NewBaseClient(httpClient, "key-sources", keySourceRetryPolicy())
	return NewKeySourceClientWithBase(base, endpoints, timeout, logger)
}

func keySourceRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, MinWait: 200 * time.Millisecond, MaxWait: time.Second}
}

func NewKeySourceClientWithBase(base *BaseClient, endpoints map[string]SupplierEndpoint, timeout time.Duration, logger *slog.Logger) *KeySourceClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	active := make(map[string]SupplierEndpoint, len(endpoints))
	for slug, ep := range endpoints {
		if ep.URL == "" || ep.APIKey == "" {
			continue
		}
		if ep.Method == "" {
			ep.Method = http.MethodPost
		}
		active[slug] = ep
	}
	return &KeySourceClient{base: base, endpoints: active, timeout: timeout, logger: logger}
}

// HasSource reports whether productSlug has a configured supplier.
func (c *KeySourceClient) HasSource(productSlug string) bool {
	_, ok := c.endpoints[productSlug]
	return ok
}

type keyRequest struct {
	Product  string `json:"product"`
	Duration string `json:"duration"`
	Email    string `json:"email"`
	OrderID  string `json:"orderId"`
}

// Fetch requests one key for the order. It never panics; all failures are
// reported through KeyFetchResult.Err.
func (c *KeySourceClient) Fetch(ctx context.Context, productSlug string, p KeyFetchParams) KeyFetchResult {
	ep, ok := c.endpoints[productSlug]
	if !ok {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeUpstreamKeySource, "API not configured for this product", nil)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(keyRequest{
		Product:  productSlug,
		Duration: p.VariantName,
		Email:    p.CustomerEmail,
		OrderID:  p.OrderNumber,
	})
	if err != nil {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal key request", err)}
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, bytes.NewReader(body))
	if err != nil {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeUpstreamKeySource, "invalid supplier endpoint", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ep.APIKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeUpstreamKeySource, "supplier request failed", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return KeyFetchResult{Err: types.NewAppError(
			types.ErrCodeUpstreamKeySource,
			fmt.Sprintf("API returned status %d", resp.StatusCode),
			nil,
		)}
	}

	var payload map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeUpstreamKeySource, "malformed supplier response", err)}
	}

	key := extractKey(payload)
	if key == "" {
		return KeyFetchResult{Err: types.NewAppError(types.ErrCodeUpstreamKeySource, "No license key found in API response", ErrNoKeyInResponse)}
	}
	return KeyFetchResult{Key: key}
}

func extractKey(payload map[string]any) string {
	for _, field := range keyFields {
		switch v := payload[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			if v != "" && v != "0" {
				return v.String()
			}
		case bool:
			if v {
				return "true"
			}
		}
	}
	return ""
}

var _ KeySource = (*KeySourceClient)(nil)
