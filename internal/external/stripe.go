package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"valor/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

const stripeAPIBase = "https://api.stripe.com"

type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient implements PaymentGateway with form-encoded calls to the
// Stripe REST API routed through BaseClient.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with its own breaker and a retry
// policy short enough to fit inside a gateway verification deadline.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	return NewStripeClientWithBase(NewBaseClient(httpClient, "stripe", gatewayRetryPolicy()), cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// RetrievePaymentIntent fetches a PaymentIntent by id.
func (s *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	if id == "" {
		return nil, types.NewAppError(types.ErrCodeValidationReference, "payment intent id is required", nil)
	}
	var pi PaymentIntent
	if err := s.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "RetrievePaymentIntent", &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// RetrieveCheckoutSession fetches a Checkout Session by id.
func (s *StripeClient) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if id == "" {
		return nil, types.NewAppError(types.ErrCodeValidationReference, "checkout session id is required", nil)
	}
	var cs CheckoutSession
	if err := s.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, "RetrieveCheckoutSession", &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// CreatePaymentIntent creates a PaymentIntent with automatic payment methods.
func (s *StripeClient) CreatePaymentIntent(ctx context.Context, p CreatePaymentIntentParams) (*PaymentIntent, error) {
	params := url.Values{}
	params.Set("amount", strconv.FormatInt(p.AmountCents, 10))
	params.Set("currency", currencyOrDefault(p.Currency))
	if p.ReceiptEmail != "" {
		params.Set("receipt_email", p.ReceiptEmail)
	}
	params.Set("automatic_payment_methods[enabled]", "true")
	setMetadata(params, "metadata", p.Metadata)

	var pi PaymentIntent
	if err := s.call(ctx, http.MethodPost, "/v1/payment_intents", params, "CreatePaymentIntent", &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// CreateCheckoutSession creates an embedded one-off payment session.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CreateCheckoutSessionParams) (*CheckoutSession, error) {
	params := url.Values{}
	params.Set("ui_mode", "embedded")
	params.Set("mode", "payment")
	if p.CustomerEmail != "" {
		params.Set("customer_email", p.CustomerEmail)
	}
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", currencyOrDefault(p.Currency))
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.AmountCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", p.LineItemName)
	if p.Description != "" {
		params.Set("line_items[0][price_data][product_data][description]", p.Description)
	}
	if p.ImageURL != "" {
		params.Set("line_items[0][price_data][product_data][images][0]", p.ImageURL)
	}
	params.Set("return_url", p.ReturnURL)
	setMetadata(params, "metadata", p.Metadata)

	var cs CheckoutSession
	if err := s.call(ctx, http.MethodPost, "/v1/checkout/sessions", params, "CreateCheckoutSession", &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) call(ctx context.Context, method, path string, params url.Values, operation string, out any) error {
	reqURL := s.baseURL + path
	var body io.Reader
	if method == http.MethodGet && len(params) > 0 {
		reqURL += "?" + params.Encode()
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, operation+": failed to build Stripe request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, operation)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: failed to decode Stripe response", operation),
			err,
		)
	}
	return nil
}

func setMetadata(params url.Values, prefix string, md map[string]string) {
	for k, v := range md {
		params.Set(fmt.Sprintf("%s[%s]", prefix, k), v)
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "usd"
	}
	return strings.ToLower(c)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}
	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

func (s *StripeClient) mapStripeError(operation string, statusCode int, e *stripeErrorBody) error {
	if e.Code == "card_declined" || e.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, e.Message),
			nil,
			map[string]any{"decline_code": e.DeclineCode, "stripe_code": e.Code},
		)
	}

	switch {
	case statusCode == http.StatusNotFound || e.Code == "resource_missing":
		return types.NewAppError(
			types.ErrCodeNotFoundOrder,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, e.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, e.Message),
			nil,
		)
	}
}

// wrapStripeError passes BaseClient AppErrors through and wraps anything else.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

var _ PaymentGateway = (*StripeClient)(nil)
