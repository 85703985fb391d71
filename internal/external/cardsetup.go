package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"valor/internal/types"
)

const cardSetupAPIBase = "https://dashboard.card-setup.com/api"

type CardSetupClientConfig struct {
	BaseURL string // defaults to cardSetupAPIBase
	Logger  *slog.Logger
}

// CardSetupClient implements CardSetupGateway. The API is unsigned JSON over
// HTTPS; every transport or decoding failure surfaces as
// upstream_cardsetup_unavailable so callers can treat it as inconclusive.
type CardSetupClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

func NewCardSetupClient(httpClient *http.Client, cfg CardSetupClientConfig) *CardSetupClient {
	return NewCardSetupClientWithBase(NewBaseClient(httpClient, "cardsetup", gatewayRetryPolicy()), cfg)
}

func NewCardSetupClientWithBase(base *BaseClient, cfg CardSetupClientConfig) *CardSetupClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cardSetupAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CardSetupClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type createInvoiceResponse struct {
	Success   bool            `json:"success"`
	Errors    []string        `json:"errors"`
	InvoiceID string          `json:"invoice_id"`
	Data      json.RawMessage `json:"data"`
}

// CreateInvoice registers an invoice and returns the hosted payment page.
// A response without success or without any payment URL is an error.
func (c *CardSetupClient) CreateInvoice(ctx context.Context, inv CardSetupInvoice) (*CreatedInvoice, error) {
	raw, err := c.post(ctx, "/create-invoice", inv, "CreateInvoice")
	if err != nil {
		return nil, err
	}

	var resp createInvoiceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCardSetup, "CreateInvoice: malformed gateway response", err)
	}
	if !resp.Success {
		msg := "failed to create invoice"
		if len(resp.Errors) > 0 {
			msg = strings.Join(resp.Errors, ", ")
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamCardSetup, "CreateInvoice: "+msg, nil)
	}

	paymentURL := extractPaymentURL(raw)
	if paymentURL == "" {
		c.logger.WarnContext(ctx, "card setup response carried no payment url", "invoice_id", inv.InvoiceID)
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCardSetup,
			"Payment gateway did not return a checkout URL. Please contact support.",
			nil,
		)
	}

	invoiceID := resp.InvoiceID
	if invoiceID == "" {
		invoiceID = inv.InvoiceID
	}
	return &CreatedInvoice{InvoiceID: invoiceID, PaymentURL: paymentURL}, nil
}

// FinalizeInvoice asks the gateway whether the payment identified by req
// succeeded. A well-formed answer is returned even when it is negative; only
// failures to obtain an answer are errors.
func (c *CardSetupClient) FinalizeInvoice(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	var body map[string]string
	switch {
	case req.TransactionID != "":
		body = map[string]string{"transactionid": req.TransactionID}
	case req.InvoiceID != "":
		body = map[string]string{"invoice_id": req.InvoiceID}
	default:
		return nil, types.NewAppError(types.ErrCodeValidationReference, "transaction id or invoice id is required", nil)
	}

	raw, err := c.post(ctx, "/finalize-invoice", body, "FinalizeInvoice")
	if err != nil {
		return nil, err
	}

	var result FinalizeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCardSetup, "FinalizeInvoice: malformed gateway response", err)
	}
	return &result, nil
}

// post sends a JSON body and returns the raw response. The gateway reports
// business failures in the body, so 4xx bodies are returned for decoding.
func (c *CardSetupClient) post(ctx context.Context, path string, payload any, operation string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, operation+": failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, operation+": failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCardSetup,
			fmt.Sprintf("%s: card setup gateway unreachable", operation),
			err,
		)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamCardSetup, operation+": failed to read response", err)
	}
	if resp.StatusCode >= 300 && !json.Valid(raw) {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamCardSetup,
			fmt.Sprintf("%s: gateway returned status %d", operation, resp.StatusCode),
			errors.New(string(raw)),
		)
	}
	return raw, nil
}

// extractPaymentURL walks the known response shapes in priority order:
// data.Transaction.{PaymentPage,PaymentPortal}, then data.{PaymentPage,
// PaymentPortal,payment_url,redirect_url,url}, then the top level.
func extractPaymentURL(raw []byte) string {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return ""
	}
	data, _ := top["data"].(map[string]any)
	if txn, ok := data["Transaction"].(map[string]any); ok {
		if u := firstString(txn, "PaymentPage", "PaymentPortal"); u != "" {
			return u
		}
	}
	if u := firstString(data, "PaymentPage", "PaymentPortal", "payment_url", "redirect_url", "url"); u != "" {
		return u
	}
	return firstString(top, "PaymentPage", "PaymentPortal", "payment_url")
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

var _ CardSetupGateway = (*CardSetupClient)(nil)
