package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"valor/internal/external"
	"valor/internal/types"
)

// Request is the customer's checkout form.
type Request struct {
	ProductSlug   string `json:"productSlug" validate:"required"`
	VariantID     string `json:"variantId" validate:"required,uuid"`
	CustomerEmail string `json:"customerEmail" validate:"required,email"`
	CouponCode    string `json:"couponCode,omitempty"`
}

type PaymentIntentResult struct {
	ClientSecret   string `json:"clientSecret"`
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	ProductName    string `json:"productName"`
	VariantName    string `json:"variantName"`
	OriginalAmount int64  `json:"originalAmount"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalAmount    int64  `json:"finalAmount"`
}

type CheckoutSessionResult struct {
	ClientSecret string `json:"clientSecret"`
	SessionID    string `json:"sessionId"`
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
}

type CardSetupInvoiceResult struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	RedirectURL string `json:"redirectUrl"`
	InvoiceID   string `json:"invoiceId"`
}

// CouponCheck is the answer to a coupon validation request.
type CouponCheck struct {
	Valid          bool               `json:"valid"`
	Error          string             `json:"error,omitempty"`
	DiscountAmount int64              `json:"discountAmount,omitempty"`
	FinalAmount    int64              `json:"finalAmount,omitempty"`
	DiscountType   types.DiscountType `json:"discountType,omitempty"`
	DiscountValue  int64              `json:"discountValue,omitempty"`
}

type Config struct {
	// SiteURL is the fallback origin for return and callback URLs.
	SiteURL string
	// CardSetupStoreURL is used when the site settings carry none.
	CardSetupStoreURL string
}

type Deps struct {
	Catalog   types.CatalogRepository
	Orders    types.OrderRepository
	Settings  types.SettingsRepository
	Pricing   *Pricing
	Payments  external.PaymentGateway
	CardSetup external.CardSetupGateway
	Logger    *slog.Logger
}

// Service creates pending orders together with their gateway payments.
// Orders are never fulfilled here; that happens once payment is confirmed.
type Service struct {
	catalog   types.CatalogRepository
	orders    types.OrderRepository
	settings  types.SettingsRepository
	pricing   *Pricing
	payments  external.PaymentGateway
	cardSetup external.CardSetupGateway
	cfg       Config
	logger    *slog.Logger
}

func NewService(d Deps, cfg Config) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:   d.Catalog,
		orders:    d.Orders,
		settings:  d.Settings,
		pricing:   d.Pricing,
		payments:  d.Payments,
		cardSetup: d.CardSetup,
		cfg:       cfg,
		logger:    logger.With("component", "checkout"),
	}
}

type prepared struct {
	product  *types.Product
	variant  *types.Variant
	quote    Quote
	settings types.SiteSettings
}

func (p *prepared) lineItem() string {
	return p.product.Name + " - " + p.variant.Name
}

func (p *prepared) durationLabel() string {
	if p.variant.DurationDays == nil {
		return "lifetime"
	}
	return strconv.Itoa(*p.variant.DurationDays)
}

// orderMetadata records the pricing on the order so fulfillment can count
// the coupon once payment succeeds.
func (p *prepared) orderMetadata(couponCode string) types.Metadata {
	m := types.Metadata{
		types.MetaOriginalAmount: p.quote.OriginalCents,
		types.MetaDiscountAmount: p.quote.DiscountCents,
	}
	if p.quote.Coupon != nil {
		m[types.MetaCouponID] = p.quote.Coupon.ID
		m[types.MetaCouponCode] = types.NormalizeCouponCode(couponCode)
	}
	return m
}

func (p *prepared) gatewayMetadata(email string) map[string]string {
	couponID := ""
	if p.quote.Coupon != nil {
		couponID = p.quote.Coupon.ID
	}
	return map[string]string{
		"product_id":      p.product.ID,
		"product_slug":    p.product.Slug,
		"product_name":    p.product.Name,
		"variant_id":      p.variant.ID,
		"variant_name":    p.variant.Name,
		"customer_email":  email,
		"coupon_id":       couponID,
		"duration_days":   p.durationLabel(),
		"original_amount": strconv.FormatInt(p.quote.OriginalCents, 10),
		"discount_amount": strconv.FormatInt(p.quote.DiscountCents, 10),
	}
}

// prepare checks the storefront state and the requested product, then
// prices the order.
func (s *Service) prepare(ctx context.Context, req Request, provider types.PaymentProvider) (*prepared, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	if settings.MaintenanceMode {
		return nil, types.NewAppError(types.ErrCodeMaintenance, "The store is currently under maintenance", nil)
	}
	if !settings.PaymentProvider.Allows(provider) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationProvider,
			"This payment method is not available", nil,
			map[string]any{"provider": string(provider)})
	}

	product, err := s.catalog.GetProductBySlug(ctx, req.ProductSlug)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "Product not found", nil)
	}
	if product.Status == types.ProductStatusDown {
		return nil, types.NewAppError(types.ErrCodeProductUnavailable, "This product is currently unavailable", nil)
	}

	variant, err := s.catalog.GetVariant(ctx, req.VariantID)
	if err != nil {
		return nil, err
	}
	if variant == nil || variant.ProductID != product.ID || !variant.Active {
		return nil, types.NewAppError(types.ErrCodeValidationVariant, "Invalid variant selected", nil)
	}

	quote, err := s.pricing.Quote(ctx, req.CouponCode, variant.PriceCents)
	if err != nil {
		return nil, err
	}
	return &prepared{product: product, variant: variant, quote: quote, settings: settings}, nil
}

// CreatePaymentIntent creates a Stripe PaymentIntent and the pending order
// that references it.
func (s *Service) CreatePaymentIntent(ctx context.Context, req Request) (*PaymentIntentResult, error) {
	p, err := s.prepare(ctx, req, types.ProviderStripe)
	if err != nil {
		return nil, err
	}

	pi, err := s.payments.CreatePaymentIntent(ctx, external.CreatePaymentIntentParams{
		AmountCents:  p.quote.FinalCents,
		Currency:     "usd",
		ReceiptEmail: req.CustomerEmail,
		Metadata:     p.gatewayMetadata(req.CustomerEmail),
	})
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, types.NewOrder{
		CustomerEmail:         req.CustomerEmail,
		ProductID:             p.product.ID,
		VariantID:             p.variant.ID,
		AmountCents:           p.quote.FinalCents,
		Currency:              "usd",
		StripePaymentIntentID: &pi.ID,
		Metadata:              p.orderMetadata(req.CouponCode),
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment intent created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"payment_intent_id", pi.ID,
		"amount_cents", p.quote.FinalCents,
	)
	return &PaymentIntentResult{
		ClientSecret:   pi.ClientSecret,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		ProductName:    p.product.Name,
		VariantName:    p.variant.Name,
		OriginalAmount: p.quote.OriginalCents,
		DiscountAmount: p.quote.DiscountCents,
		FinalAmount:    p.quote.FinalCents,
	}, nil
}

// CreateCheckoutSession creates an embedded Stripe Checkout session. origin
// is the storefront origin the customer returns to.
func (s *Service) CreateCheckoutSession(ctx context.Context, req Request, origin string) (*CheckoutSessionResult, error) {
	p, err := s.prepare(ctx, req, types.ProviderStripe)
	if err != nil {
		return nil, err
	}

	if origin == "" {
		origin = s.siteURL(p.settings)
	}
	var image string
	if p.product.ImageURL != nil {
		image = *p.product.ImageURL
	}

	cs, err := s.payments.CreateCheckoutSession(ctx, external.CreateCheckoutSessionParams{
		LineItemName:  p.lineItem(),
		ImageURL:      image,
		AmountCents:   p.quote.FinalCents,
		Currency:      "usd",
		CustomerEmail: req.CustomerEmail,
		ReturnURL:     strings.TrimSuffix(origin, "/") + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		Metadata:      p.gatewayMetadata(req.CustomerEmail),
	})
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, types.NewOrder{
		CustomerEmail:           req.CustomerEmail,
		ProductID:               p.product.ID,
		VariantID:               p.variant.ID,
		AmountCents:             p.quote.FinalCents,
		Currency:                "usd",
		StripeCheckoutSessionID: &cs.ID,
		Metadata:                p.orderMetadata(req.CouponCode),
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"session_id", cs.ID,
	)
	return &CheckoutSessionResult{
		ClientSecret: cs.ClientSecret,
		SessionID:    cs.ID,
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
	}, nil
}

// CreateCardSetupInvoice creates the pending order first, since its number
// doubles as the invoice id, then registers the invoice. A gateway failure
// marks the order failed.
func (s *Service) CreateCardSetupInvoice(ctx context.Context, req Request) (*CardSetupInvoiceResult, error) {
	p, err := s.prepare(ctx, req, types.ProviderCardSetup)
	if err != nil {
		return nil, err
	}

	method := types.PaymentMethodCardSetup
	order, err := s.orders.Create(ctx, types.NewOrder{
		CustomerEmail: req.CustomerEmail,
		ProductID:     p.product.ID,
		VariantID:     p.variant.ID,
		AmountCents:   p.quote.FinalCents,
		Currency:      "usd",
		PaymentMethod: &method,
		Metadata:      p.orderMetadata(req.CouponCode),
	})
	if err != nil {
		return nil, err
	}
	log := s.logger.With("order_id", order.ID, "order_number", order.OrderNumber)

	store := s.storeURL(p.settings)
	invoice, err := s.cardSetup.CreateInvoice(ctx, external.CardSetupInvoice{
		Store:       store,
		InvoiceID:   order.OrderNumber,
		Amount:      fmt.Sprintf("%.2f", float64(p.quote.FinalCents)/100),
		Currency:    "USD",
		Purchases:   []external.CardSetupPurchase{{Name: p.lineItem()}},
		Email:       req.CustomerEmail,
		CallbackURL: store + "checkout/cardsetup-callback/?order_id=" + url.QueryEscape(order.ID),
		OrderInfo:   fmt.Sprintf("Order %s for %s", order.OrderNumber, p.product.Name),
	})
	if err != nil {
		log.ErrorContext(ctx, "card setup invoice failed, marking order failed", "error", err)
		if _, uerr := s.orders.UpdateStatus(ctx, order.ID, types.StatusUpdate{
			Status:      types.OrderStatusFailed,
			AllowedFrom: []types.OrderStatus{types.OrderStatusPending},
			Metadata:    types.Metadata{types.MetaCardSetupError: errorText(err)},
		}); uerr != nil {
			log.ErrorContext(ctx, "failed to mark order failed", "error", uerr)
		}
		return nil, err
	}

	if err := s.orders.MergeMetadata(ctx, order.ID, types.Metadata{types.MetaCardSetupInvoiceID: invoice.InvoiceID}); err != nil {
		// The order number is the invoice id fallback, so verification still works.
		log.WarnContext(ctx, "failed to record card setup invoice id", "error", err)
	}

	log.InfoContext(ctx, "card setup invoice created", "invoice_id", invoice.InvoiceID)
	return &CardSetupInvoiceResult{
		Success:     true,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		RedirectURL: invoice.PaymentURL,
		InvoiceID:   invoice.InvoiceID,
	}, nil
}

// ValidateCoupon prices variantID with code for display at checkout.
func (s *Service) ValidateCoupon(ctx context.Context, code, variantID string) (*CouponCheck, error) {
	variant, err := s.catalog.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return &CouponCheck{Valid: false, Error: "Invalid variant"}, nil
	}

	q, err := s.pricing.Quote(ctx, code, variant.PriceCents)
	if err != nil {
		return nil, err
	}
	if q.Coupon == nil {
		return &CouponCheck{Valid: false, Error: "Invalid or expired coupon code"}, nil
	}
	return &CouponCheck{
		Valid:          true,
		DiscountAmount: q.DiscountCents,
		FinalAmount:    q.FinalCents,
		DiscountType:   q.Coupon.DiscountType,
		DiscountValue:  q.Coupon.DiscountValue,
	}, nil
}

func (s *Service) siteURL(settings types.SiteSettings) string {
	if settings.SiteURL != "" {
		return settings.SiteURL
	}
	return s.cfg.SiteURL
}

// storeURL returns the Card Setup store URL with a trailing slash.
func (s *Service) storeURL(settings types.SiteSettings) string {
	store := settings.CardSetupStoreURL
	if store == "" {
		store = s.cfg.CardSetupStoreURL
	}
	if store == "" {
		store = s.siteURL(settings)
	}
	return strings.TrimSuffix(store, "/") + "/"
}

func errorText(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
