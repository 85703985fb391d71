package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"valor/internal/core"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

// transactionAliases are the query parameters Card Setup has used for the
// transaction id on its redirect, in lookup order.
var transactionAliases = []string{
	"transactionid",
	"transaction_id",
	"TransactionId",
	"txn_id",
	"txnid",
	"payment_id",
	"paymentid",
	"ref",
	"reference",
}

// completionResponse is returned by every customer-facing completion call.
type completionResponse struct {
	Success          bool       `json:"success"`
	Status           string     `json:"status"`
	OrderID          string     `json:"orderId,omitempty"`
	OrderNumber      string     `json:"orderNumber,omitempty"`
	LicenseKey       string     `json:"licenseKey,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	AlreadyCompleted bool       `json:"alreadyCompleted,omitempty"`
	GatewayStatus    string     `json:"gatewayStatus,omitempty"`
}

// OrderHandler serves the return-URL completion endpoints.
type OrderHandler struct {
	fulfiller Fulfiller
	logger    *slog.Logger
}

func NewOrderHandler(fulfiller Fulfiller, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{fulfiller: fulfiller, logger: logger.With("component", "order_handler")}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/complete-order", h.CompleteOrder)
	r.Get("/cardsetup/callback", h.CardSetupCallback)
	r.Post("/cardsetup/verify", h.CardSetupVerify)
}

type completeOrderRequest struct {
	PaymentIntentID    string `json:"paymentIntentId"`
	PaymentReferenceID string `json:"paymentReferenceId"`
}

// CompleteOrder is polled by the Stripe return page.
func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	id := req.PaymentIntentID
	if id == "" {
		id = req.PaymentReferenceID
	}
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationReference, "Missing payment intent ID", nil))
		return
	}

	res, err := h.fulfiller.Complete(r.Context(), fulfillment.TriggerClientCompletion, fulfillment.PaymentIntentRef(id))
	writeCompletion(w, r, res, err)
}

// CardSetupCallback handles the customer's redirect back from Card Setup.
// Without a transaction id it falls back to an invoice poll.
func (h *OrderHandler) CardSetupCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID := q.Get("order_id")
	if orderID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing order ID", nil))
		return
	}

	ref := fulfillment.OrderRef(orderID)
	for _, alias := range transactionAliases {
		if v := q.Get(alias); v != "" {
			ref.TransactionID = v
			break
		}
	}
	if ref.TransactionID == "" {
		h.logger.InfoContext(r.Context(), "card setup callback without transaction id; polling invoice", "order_id", orderID)
	}

	res, err := h.fulfiller.Complete(r.Context(), fulfillment.TriggerCardSetupCallback, ref)
	writeCompletion(w, r, res, err)
}

type cardSetupVerifyRequest struct {
	OrderID string `json:"orderId"`
}

// CardSetupVerify is the polling fallback used by the callback page.
func (h *OrderHandler) CardSetupVerify(w http.ResponseWriter, r *http.Request) {
	var req cardSetupVerifyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.OrderID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Missing order ID", nil))
		return
	}

	res, err := h.fulfiller.Complete(r.Context(), fulfillment.TriggerCardSetupCallback, fulfillment.OrderRef(req.OrderID))
	writeCompletion(w, r, res, err)
}

// writeCompletion maps a result to 200 (completed), 202 (pending) or 402
// (declined). Errors go through core.Error.
func writeCompletion(w http.ResponseWriter, r *http.Request, res *fulfillment.Result, err error) {
	if err != nil {
		core.Error(w, r, err)
		return
	}

	body := completionResponse{
		Status:           string(res.Outcome),
		OrderID:          res.OrderID,
		OrderNumber:      res.OrderNumber,
		AlreadyCompleted: res.AlreadyCompleted,
		GatewayStatus:    res.GatewayStatus,
	}
	switch res.Outcome {
	case fulfillment.OutcomeCompleted:
		body.Success = true
		body.LicenseKey = res.LicenseKey
		body.ExpiresAt = res.ExpiresAt
		core.JSON(w, r, http.StatusOK, body)
	case fulfillment.OutcomeDeclined:
		core.JSON(w, r, http.StatusPaymentRequired, body)
	default:
		core.JSON(w, r, http.StatusAccepted, body)
	}
}
