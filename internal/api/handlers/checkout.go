package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"valor/internal/checkout"
	"valor/internal/core"
)

type CheckoutHandler struct {
	service   CheckoutService
	validator *core.Validator
	logger    *slog.Logger
}

func NewCheckoutHandler(service CheckoutService, validator *core.Validator, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{service: service, validator: validator, logger: logger.With("component", "checkout_handler")}
}

func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/payment-intent", h.CreatePaymentIntent)
		r.Post("/session", h.CreateCheckoutSession)
		r.Post("/cardsetup", h.CreateCardSetupInvoice)
	})
	r.Post("/coupons/validate", h.ValidateCoupon)
}

func (h *CheckoutHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.service.CreatePaymentIntent(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}

// CreateCheckoutSession uses the Origin header to build the return URL.
func (h *CheckoutHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.service.CreateCheckoutSession(r.Context(), req, r.Header.Get("Origin"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}

func (h *CheckoutHandler) CreateCardSetupInvoice(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.service.CreateCardSetupInvoice(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}

type couponRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	VariantID string `json:"variantId" validate:"required,uuid"`
}

func (h *CheckoutHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.service.ValidateCoupon(r.Context(), req.Code, req.VariantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, res)
}
