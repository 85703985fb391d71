package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v82"

	"valor/internal/core"
	"valor/internal/external"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

const maxWebhookBodySize = 512 * 1024

type webhookAck struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// StripeWebhookHandler receives signed Stripe events. It sits outside the
// admin gate; the signature is the only authentication.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	fulfiller Fulfiller
	secret    types.SecretString
	logger    *slog.Logger
}

func NewStripeWebhookHandler(verifier external.WebhookVerifier, fulfiller Fulfiller, secret types.SecretString, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		fulfiller: fulfiller,
		secret:    secret,
		logger:    logger.With("component", "stripe_webhook"),
	}
}

func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle verifies the signature, then acknowledges with 200 whatever the
// processing outcome so Stripe does not retry into a storm. Unverifiable
// requests get 400 and are never parsed.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		h.reject(w, r, types.ErrCodeValidationInvalidJSON, "failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(ctx, "missing Stripe-Signature header", "remote_addr", r.RemoteAddr)
		h.reject(w, r, types.ErrCodeAuthSignatureInvalid, "Missing signature")
		return
	}
	if !h.secret.IsSet() {
		h.logger.ErrorContext(ctx, "STRIPE_WEBHOOK_SECRET is not configured; rejecting webhook")
		h.reject(w, r, types.ErrCodeAuthWebhookSecretUnset, "Webhook secret not configured")
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret.Unmask()); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		h.reject(w, r, types.ErrCodeAuthSignatureInvalid, "Invalid signature")
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Data == nil {
		h.logger.ErrorContext(ctx, "failed to parse verified webhook event", "error", err)
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Error: "Internal error"})
		return
	}

	log := h.logger.With("event_id", event.ID, "event_type", string(event.Type))
	log.InfoContext(ctx, "processing stripe webhook event")

	if err := h.route(ctx, log, &event); err != nil {
		log.ErrorContext(ctx, "webhook event processing failed", "error", err)
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Error: "Internal error"})
		return
	}
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
}

func (h *StripeWebhookHandler) route(ctx context.Context, log *slog.Logger, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return err
		}
		ref := fulfillment.PaymentIntentRef(pi.ID)
		ref.PreVerified = true
		ref.PaymentMethod = firstOr(pi.PaymentMethodTypes, types.PaymentMethodCard)
		return h.complete(ctx, log, ref)

	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return err
		}
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			log.InfoContext(ctx, "checkout session not paid yet", "payment_status", string(cs.PaymentStatus))
			return nil
		}
		ref := fulfillment.CheckoutSessionRef(cs.ID)
		ref.PreVerified = true
		ref.PaymentMethod = firstOr(cs.PaymentMethodTypes, types.PaymentMethodCard)
		if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
			ref.Metadata = map[string]any{types.MetaStripePaymentIntent: cs.PaymentIntent.ID}
		}
		return h.complete(ctx, log, ref)

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return err
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			log.WarnContext(ctx, "refunded charge has no payment intent", "charge_id", ch.ID)
			return nil
		}
		req := fulfillment.RefundRequest{PaymentIntentID: ch.PaymentIntent.ID}
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 && ch.Refunds.Data[0] != nil {
			req.RefundID = ch.Refunds.Data[0].ID
			req.Reason = string(ch.Refunds.Data[0].Reason)
		}
		_, err := h.fulfiller.Refund(ctx, fulfillment.TriggerStripeWebhook, req)
		if types.IsCode(err, types.ErrCodeNotFoundOrder) {
			log.WarnContext(ctx, "no order for refunded payment intent", "payment_intent_id", req.PaymentIntentID)
			return nil
		}
		return err

	default:
		log.InfoContext(ctx, "ignoring unhandled webhook event type")
		return nil
	}
}

// complete runs fulfillment for a signed success event. Events for orders
// this store never created are acknowledged without an error flag.
func (h *StripeWebhookHandler) complete(ctx context.Context, log *slog.Logger, ref fulfillment.Reference) error {
	res, err := h.fulfiller.Complete(ctx, fulfillment.TriggerStripeWebhook, ref)
	if types.IsCode(err, types.ErrCodeNotFoundOrder) {
		log.WarnContext(ctx, "no order for webhook reference", "reference", ref.Value)
		return nil
	}
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "webhook fulfillment finished",
		"order_number", res.OrderNumber,
		"outcome", string(res.Outcome),
		"already_completed", res.AlreadyCompleted,
	)
	return nil
}

// reject answers an unverifiable webhook with 400.
func (h *StripeWebhookHandler) reject(w http.ResponseWriter, r *http.Request, code types.ErrorCode, msg string) {
	core.JSON(w, r, http.StatusBadRequest, core.APIErrorResponse{Error: core.ErrorDetail{
		Code:      string(code),
		Message:   msg,
		RequestID: types.GetRequestID(r.Context()),
	}})
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}
