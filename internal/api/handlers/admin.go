package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"valor/internal/core"
	"valor/internal/fulfillment"
	"valor/internal/types"
)

// AdminHandler serves the operator console API. Everything except Login is
// mounted behind core.RequireAdmin.
type AdminHandler struct {
	login        AdminLogin
	orders       Reprocessor
	details      OrderDetailsReader
	validator    *core.Validator
	logger       *slog.Logger
	sweepTimeout time.Duration
}

const defaultSweepTimeout = 5 * time.Minute

func NewAdminHandler(login AdminLogin, orders Reprocessor, details OrderDetailsReader, validator *core.Validator, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		login:        login,
		orders:       orders,
		details:      details,
		validator:    validator,
		logger:       logger.With("component", "admin_handler"),
		sweepTimeout: defaultSweepTimeout,
	}
}

// WithSweepTimeout bounds reprocess-pending independently of the request
// deadline.
func (h *AdminHandler) WithSweepTimeout(d time.Duration) *AdminHandler {
	if d > 0 {
		h.sweepTimeout = d
	}
	return h
}

// RegisterPublicRoutes mounts the unauthenticated admin endpoints.
func (h *AdminHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/login", h.Login)
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders/reprocess-pending", h.ReprocessPending)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/reprocess", h.ReprocessOrder)
	r.Post("/orders/{id}/refund", h.RefundOrder)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	session, err := h.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, session)
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if uuid.Validate(id) != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil))
		return
	}
	details, err := h.details.GetDetails(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if details == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, details)
}

type reprocessResponse struct {
	Success    bool   `json:"success"`
	LicenseKey string `json:"licenseKey,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ReprocessOrder re-verifies one order with its gateway. A payment that is
// still pending or was declined is reported as an unsuccessful 200.
func (h *AdminHandler) ReprocessOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.logAction(r, "reprocess_order", "order_id", id)

	res, err := h.orders.ReprocessOrder(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			status = appErr.HTTPStatus()
		}
		core.JSON(w, r, status, reprocessResponse{Error: errorMessage(err)})
		return
	}
	if res.Outcome != fulfillment.OutcomeCompleted {
		core.JSON(w, r, http.StatusOK, reprocessResponse{Error: fmt.Sprintf("Payment status is %s", res.GatewayStatus)})
		return
	}
	core.JSON(w, r, http.StatusOK, reprocessResponse{Success: true, LicenseKey: res.LicenseKey})
}

type sweepResponse struct {
	Success bool `json:"success"`
	*fulfillment.SweepReport
}

// ReprocessPending sweeps every pending order. The sweep is detached from the
// request so a slow gateway cannot cut it short at the request timeout.
func (h *AdminHandler) ReprocessPending(w http.ResponseWriter, r *http.Request) {
	h.logAction(r, "reprocess_pending")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.sweepTimeout)
	defer cancel()
	report, err := h.orders.ReprocessAllPending(ctx)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, sweepResponse{Success: true, SweepReport: report})
}

type refundRequest struct {
	Reason   string `json:"reason" validate:"omitempty,max=500"`
	RefundID string `json:"refundId" validate:"omitempty,max=255"`
}

type refundResponse struct {
	Success bool         `json:"success"`
	Order   *types.Order `json:"order"`
}

// RefundOrder records a refund issued from the Stripe dashboard. The body
// is optional.
func (h *AdminHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	h.logAction(r, "refund_order", "order_id", id)

	order, err := h.orders.Refund(r.Context(), fulfillment.TriggerManual, fulfillment.RefundRequest{
		OrderID:  id,
		RefundID: req.RefundID,
		Reason:   req.Reason,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, refundResponse{Success: true, Order: order})
}

func (h *AdminHandler) logAction(r *http.Request, action string, args ...any) {
	admin, _ := types.GetAdmin(r.Context())
	args = append([]any{"action", action, "admin", admin.Username}, args...)
	h.logger.InfoContext(r.Context(), "admin action", args...)
}

func errorMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal error"
}
