// Package fulfillment implements the order state machine shared by every
// payment entry point: the Stripe webhook, the client completion call, the
// Card Setup callback and poll, and manual and bulk reprocessing.
//
// An invocation resolves the order, short-circuits terminal states, verifies
// payment with the owning gateway, then allocates a key and marks the order
// paid in one transaction. The pending to paid write is conditional, so
// concurrent invocations for the same order allocate exactly one key.
// Notifications run after the commit and never affect the outcome.
package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"valor/internal/cache"
	"valor/internal/external"
	"valor/internal/keys"
	"valor/internal/notifications"
	"valor/internal/telemetry"
	"valor/internal/types"
)

const tracerName = "valor/internal/fulfillment"

type Config struct {
	// GatewayTimeout bounds each synchronous verification call. A timeout
	// is treated as inconclusive.
	GatewayTimeout    time.Duration
	// FulfillTimeout bounds allocation, commit and notifications once payment
	// is verified. That phase ignores the caller's cancellation.
	FulfillTimeout    time.Duration
	SweepWorkers      int
	LowStockThreshold int
}

// Deps are the collaborators of the Orchestrator. Notifier, Guard, Metrics
// and KeySources are optional.
type Deps struct {
	Orders     types.OrderRepository
	Keys       types.LicenseKeyRepository
	Tx         types.TransactionManager
	Allocator  *keys.Allocator
	Payments   external.PaymentGateway
	CardSetup  external.CardSetupGateway
	KeySources external.KeySource
	Notifier   notifications.Notifier
	Guard      cache.InflightGuard
	Metrics    telemetry.Metrics
	Clock      types.Clock
	Logger     *slog.Logger
}

type Orchestrator struct {
	orders     types.OrderRepository
	keys       types.LicenseKeyRepository
	tx         types.TransactionManager
	allocator  *keys.Allocator
	payments   external.PaymentGateway
	cardSetup  external.CardSetupGateway
	keySources external.KeySource
	notifier   notifications.Notifier
	guard      cache.InflightGuard
	metrics    telemetry.Metrics
	clock      types.Clock
	logger     *slog.Logger
	tracer     trace.Tracer
	cfg        Config
}

func NewOrchestrator(d Deps, cfg Config) *Orchestrator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.FulfillTimeout <= 0 {
		cfg.FulfillTimeout = 30 * time.Second
	}
	if cfg.SweepWorkers < 1 {
		cfg.SweepWorkers = 4
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	allocator := d.Allocator
	if allocator == nil {
		allocator = keys.NewAllocator(nil, clock, logger)
	}
	return &Orchestrator{
		orders:     d.Orders,
		keys:       d.Keys,
		tx:         d.Tx,
		allocator:  allocator,
		payments:   d.Payments,
		cardSetup:  d.CardSetup,
		keySources: d.KeySources,
		notifier:   d.Notifier,
		guard:      d.Guard,
		metrics:    metrics,
		clock:      clock,
		logger:     logger.With("component", "fulfillment"),
		tracer:     otel.Tracer(tracerName),
		cfg:        cfg,
	}
}

// Complete runs the fulfillment sequence for the order identified by ref.
// Pending and declined payments are reported through Result.Outcome with a
// nil error; errors are reserved for missing orders, refunded orders and
// failures that need operator attention.
func (o *Orchestrator) Complete(ctx context.Context, trigger Trigger, ref Reference) (res *Result, err error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "fulfillment.Complete", trace.WithAttributes(
		attribute.String("fulfillment.trigger", string(trigger)),
		attribute.String("fulfillment.reference_kind", string(ref.Kind)),
	))
	defer func() {
		outcome := OutcomeError
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if res != nil {
			outcome = res.Outcome
			span.SetAttributes(
				attribute.String("fulfillment.outcome", string(outcome)),
				attribute.Bool("fulfillment.already_completed", res.AlreadyCompleted),
			)
		}
		span.End()
		o.metrics.RecordOutcome(ctx, string(trigger), string(outcome))
		o.metrics.RecordLatency(ctx, string(trigger), time.Since(start))
	}()

	order, err := o.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	log := types.LoggerFromContext(ctx, o.logger).With(
		"trigger", string(trigger),
		"order_id", order.ID,
		"order_number", order.OrderNumber,
	)

	if done, res, err := o.checkTerminal(ctx, order); done {
		if err == nil {
			log.InfoContext(ctx, "order already completed")
		}
		return res, err
	}

	v, err := o.verify(ctx, order, ref)
	if err != nil {
		log.WarnContext(ctx, "payment verification failed", "error", err)
		return nil, err
	}
	switch v.verdict {
	case verdictPending:
		log.InfoContext(ctx, "payment not yet confirmed", "gateway_status", v.status)
		return unchanged(order, OutcomePending, v.status), nil
	case verdictDeclined:
		log.InfoContext(ctx, "payment declined", "gateway_status", v.status)
		return unchanged(order, OutcomeDeclined, v.status), nil
	}

	// A customer who paid must get the key and the email even if the
	// request that noticed the payment is abandoned.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FulfillTimeout)
	defer cancel()
	return o.fulfill(fctx, log, trigger, order, v)
}

func (o *Orchestrator) resolve(ctx context.Context, ref Reference) (*types.Order, error) {
	if ref.Value == "" {
		return nil, types.NewAppError(types.ErrCodeValidationReference, "Payment reference is required", nil)
	}

	var (
		order *types.Order
		err   error
	)
	switch ref.Kind {
	case RefPaymentIntent:
		order, err = o.orders.GetByPaymentIntent(ctx, ref.Value)
	case RefCheckoutSession:
		order, err = o.orders.GetByCheckoutSession(ctx, ref.Value)
	case RefOrderID:
		if _, parseErr := uuid.Parse(ref.Value); parseErr != nil {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
		}
		order, err = o.orders.GetByID(ctx, ref.Value)
	default:
		return nil, types.NewAppError(types.ErrCodeValidationReference, "unknown payment reference kind", nil)
	}
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
	}
	return order, nil
}

// checkTerminal reports done=true for orders that must not be processed:
// fulfilled orders yield their existing key, refunded orders an error.
func (o *Orchestrator) checkTerminal(ctx context.Context, order *types.Order) (bool, *Result, error) {
	switch {
	case order.Status.IsFulfilled():
		res, err := o.existingResult(ctx, order)
		return true, res, err
	case order.Status == types.OrderStatusRefunded:
		return true, nil, types.NewAppError(types.ErrCodeConflictRefunded, "Order has been refunded", nil)
	}
	return false, nil, nil
}

func (o *Orchestrator) existingResult(ctx context.Context, order *types.Order) (*Result, error) {
	var (
		k   *types.LicenseKey
		err error
	)
	if order.LicenseKeyID != nil {
		k, err = o.keys.GetByID(ctx, *order.LicenseKeyID)
	} else {
		k, err = o.keys.GetByOrder(ctx, order.ID)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		Outcome:          OutcomeCompleted,
		AlreadyCompleted: true,
	}
	if k != nil {
		res.LicenseKey = k.LicenseKey
		res.ExpiresAt = k.ExpiresAt
	}
	return res, nil
}

func unchanged(order *types.Order, outcome Outcome, status string) *Result {
	return &Result{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Outcome:       outcome,
		GatewayStatus: status,
	}
}

// fulfill allocates the key and marks the order paid. Verification has
// already succeeded.
func (o *Orchestrator) fulfill(ctx context.Context, log *slog.Logger, trigger Trigger, order *types.Order, v verification) (*Result, error) {
	details, err := o.orders.GetDetails(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
	}
	if details.Variant == nil {
		err := types.NewAppError(types.ErrCodeNotFoundVariant, "Product variant not found for order", nil)
		o.notifyError(ctx, log, order, trigger, err)
		return nil, err
	}

	if o.guard != nil {
		release, ok, err := o.guard.Acquire(ctx, "order:"+order.ID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "inflight guard unavailable, continuing without it", "error", err)
		case !ok:
			log.InfoContext(ctx, "fulfillment already in flight for order")
			return unchanged(order, OutcomePending, "in_flight"), nil
		default:
			defer release()
		}
	}

	explicitKey, source := o.fetchExternalKey(ctx, log, order, details)

	key, err := o.commit(ctx, trigger, order, details, v, explicitKey, source)
	if errors.Is(err, types.ErrKeyValueTaken) && explicitKey != "" {
		log.WarnContext(ctx, "supplier key already issued, generating key locally",
			"product_slug", details.Product.Slug,
			"error", err,
		)
		explicitKey, source = "", "generated"
		key, err = o.commit(ctx, trigger, order, details, v, explicitKey, source)
	}
	if err != nil {
		if isLostRace(err) {
			if explicitKey != "" {
				log.WarnContext(ctx, "supplier key discarded after losing the completion race",
					"product_slug", details.Product.Slug,
					"supplier_key_suffix", keySuffix(explicitKey),
				)
			}
			log.InfoContext(ctx, "order completed concurrently, returning existing key")
			return o.winnerResult(ctx, order.ID, err)
		}
		log.ErrorContext(ctx, "fulfillment failed, order left unchanged", "error", err)
		o.notifyError(ctx, log, order, trigger, err)
		return nil, err
	}

	log.InfoContext(ctx, "order fulfilled",
		"key_id", key.ID,
		"key_source", source,
		"payment_method", v.paymentMethod,
	)
	o.notifyCompleted(ctx, log, order, details, key, v)

	return &Result{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		LicenseKey:  key.LicenseKey,
		ExpiresAt:   key.ExpiresAt,
		Outcome:     OutcomeCompleted,
	}, nil
}

// commit allocates the key and marks the order paid in one transaction, and
// counts the coupon use when the order carries one.
func (o *Orchestrator) commit(ctx context.Context, trigger Trigger, order *types.Order, details *types.OrderDetails, v verification, explicitKey, source string) (*types.LicenseKey, error) {
	var key *types.LicenseKey
	err := o.tx.RunInTx(ctx, func(ctx context.Context, repos types.TxRepos) error {
		k, err := o.allocator.Allocate(ctx, repos.LicenseKeys(), keys.Request{
			VariantID:    details.Variant.ID,
			OrderID:      order.ID,
			DurationDays: details.Variant.DurationDays,
			ExplicitKey:  explicitKey,
		})
		if err != nil {
			return err
		}

		meta := types.Metadata{
			types.MetaKeySource:   source,
			types.MetaFulfilledBy: string(trigger),
		}.Merge(v.metadata)
		if _, err := repos.Orders().UpdateStatus(ctx, order.ID, types.StatusUpdate{
			Status:        types.OrderStatusPaid,
			AllowedFrom:   []types.OrderStatus{types.OrderStatusPending, types.OrderStatusFailed},
			LicenseKeyID:  &k.ID,
			PaymentMethod: optionalString(v.paymentMethod),
			Metadata:      meta,
		}); err != nil {
			return err
		}

		if couponID := order.Metadata.String(types.MetaCouponID); couponID != "" {
			if err := repos.Coupons().IncrementUsage(ctx, couponID); err != nil {
				return err
			}
		}
		key = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// keySuffix keeps the last four characters of a key for logs.
func keySuffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}

// fetchExternalKey asks the product's supplier for a key. Any failure falls
// back to local generation.
func (o *Orchestrator) fetchExternalKey(ctx context.Context, log *slog.Logger, order *types.Order, details *types.OrderDetails) (string, string) {
	if o.keySources == nil || details.Product == nil || !o.keySources.HasSource(details.Product.Slug) {
		return "", "generated"
	}

	res := o.keySources.Fetch(ctx, details.Product.Slug, external.KeyFetchParams{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		VariantName:   details.Variant.Name,
		ProductName:   details.Product.Name,
	})
	if res.Err != nil {
		log.WarnContext(ctx, "external key source failed, generating key locally",
			"product_slug", details.Product.Slug,
			"error", res.Err,
		)
		return "", "generated"
	}
	return res.Key, "external"
}

// isLostRace reports whether the transaction failed because another
// invocation completed the order first.
func isLostRace(err error) bool {
	return errors.Is(err, types.ErrTransitionRejected) || types.IsCode(err, types.ErrCodeConflictTransition)
}

func (o *Orchestrator) winnerResult(ctx context.Context, orderID string, cause error) (*Result, error) {
	current, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, cause
	}
	if done, res, err := o.checkTerminal(ctx, current); done {
		return res, err
	}
	return nil, cause
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// errorMessage returns the user-facing message of err.
func errorMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
