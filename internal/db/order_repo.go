package db

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"valor/internal/types"
)

const orderColumns = `id, order_number, customer_email, product_id, variant_id, license_key_id,
	amount_cents, currency, status, stripe_payment_intent_id, stripe_checkout_session_id,
	payment_method, metadata, created_at, paid_at`

const orderNumberAttempts = 3

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// OrderRepo implements types.OrderRepository.
type OrderRepo struct {
	db     DBTX
	prefix string
	logger *slog.Logger
	now    func() time.Time
	randFn func(n int) int
}

func NewOrderRepo(db DBTX, orderPrefix string, logger *slog.Logger) *OrderRepo {
	if logger == nil {
		logger = slog.Default()
	}
	if orderPrefix == "" {
		orderPrefix = "JC"
	}
	return &OrderRepo{db: db, prefix: orderPrefix, logger: logger, now: time.Now, randFn: rand.IntN}
}

// NewOrderNumber formats PREFIX-<base36 unix ms>-<4 random base36 chars>.
func (r *OrderRepo) NewOrderNumber() string {
	ts := strings.ToUpper(strconv.FormatInt(r.now().UnixMilli(), 36))
	var suffix [4]byte
	for i := range suffix {
		suffix[i] = base36[r.randFn(len(base36))]
	}
	return r.prefix + "-" + ts + "-" + string(suffix[:])
}

// Create inserts a pending order. A clash on order_number is retried with a
// fresh number.
func (r *OrderRepo) Create(ctx context.Context, in types.NewOrder) (*types.Order, error) {
	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}
	meta := in.Metadata
	if meta == nil {
		meta = types.Metadata{}
	}

	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		row := r.db.QueryRow(ctx,
			`INSERT INTO orders (order_number, customer_email, product_id, variant_id,
				amount_cents, currency, status, stripe_payment_intent_id,
				stripe_checkout_session_id, payment_method, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, $10)
			 RETURNING `+orderColumns,
			r.NewOrderNumber(),
			in.CustomerEmail,
			in.ProductID,
			in.VariantID,
			in.AmountCents,
			currency,
			in.StripePaymentIntentID,
			in.StripeCheckoutSessionID,
			in.PaymentMethod,
			meta,
		)
		o, err := scanOrder(row)
		if err == nil {
			return o, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			break
		}
		r.logger.WarnContext(ctx, "order number collision, retrying", "attempt", attempt+1)
	}
	return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create order", lastErr)
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*types.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*types.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

// GetByPaymentIntent also matches orders paid through a Checkout Session,
// whose payment intent id is recorded in metadata at fulfillment.
func (r *OrderRepo) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*types.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE stripe_payment_intent_id = $1 OR metadata->>'stripe_payment_intent_id' = $1
		ORDER BY stripe_payment_intent_id NULLS LAST
		LIMIT 1`, paymentIntentID)
}

func (r *OrderRepo) GetByCheckoutSession(ctx context.Context, sessionID string) (*types.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_checkout_session_id = $1`, sessionID)
}

func (r *OrderRepo) getOne(ctx context.Context, sql string, arg string) (*types.Order, error) {
	if arg == "" {
		return nil, nil
	}
	o, err := scanOrder(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load order", err)
	}
	return o, nil
}

// GetDetails loads an order together with its product, variant and assigned
// key. Missing relations are left nil.
func (r *OrderRepo) GetDetails(ctx context.Context, id string) (*types.OrderDetails, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil || o == nil {
		return nil, err
	}

	details := &types.OrderDetails{Order: *o}

	catalog := NewCatalogRepo(r.db)
	if details.Product, err = catalog.GetProduct(ctx, o.ProductID); err != nil {
		return nil, err
	}
	if details.Variant, err = catalog.GetVariant(ctx, o.VariantID); err != nil {
		return nil, err
	}
	if o.LicenseKeyID != nil {
		if details.LicenseKey, err = NewLicenseKeyRepo(r.db).GetByID(ctx, *o.LicenseKeyID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

// ListPending returns pending orders oldest first.
func (r *OrderRepo) ListPending(ctx context.Context) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending orders", err)
	}
	defer rows.Close()

	var out []types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pending order", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate pending orders", err)
	}
	return out, nil
}

// UpdateStatus applies a status transition in a single statement. With
// AllowedFrom set the row is only written while its current status is one of
// those values, so concurrent callers cannot both win.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, u types.StatusUpdate) (*types.Order, error) {
	var allowed []string
	for _, s := range u.AllowedFrom {
		allowed = append(allowed, string(s))
	}
	meta := u.Metadata
	if meta == nil {
		meta = types.Metadata{}
	}

	row := r.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2::text,
		     license_key_id = COALESCE($3, license_key_id),
		     payment_method = COALESCE($4, payment_method),
		     metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
		     paid_at = CASE WHEN $2::text IN ('paid', 'completed') AND paid_at IS NULL
		                    THEN NOW() ELSE paid_at END
		 WHERE id = $1
		   AND ($6::text[] IS NULL OR status = ANY($6::text[]))
		 RETURNING `+orderColumns,
		id,
		string(u.Status),
		u.LicenseKeyID,
		u.PaymentMethod,
		meta,
		allowed,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if len(allowed) > 0 {
			r.logger.InfoContext(ctx, "conditional status update matched no row",
				"order_id", id, "target_status", u.Status, "allowed_from", allowed)
			return nil, types.NewAppError(types.ErrCodeConflictTransition,
				"order is no longer in a state that allows this transition", types.ErrTransitionRejected)
		}
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update order status", err)
	}
	return o, nil
}

func (r *OrderRepo) MergeMetadata(ctx context.Context, id string, m types.Metadata) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb WHERE id = $1`,
		id, m)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, "Order not found", nil)
	}
	return nil
}

func scanOrder(row pgx.Row) (*types.Order, error) {
	var (
		o      types.Order
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerEmail,
		&o.ProductID,
		&o.VariantID,
		&o.LicenseKeyID,
		&o.AmountCents,
		&o.Currency,
		&status,
		&o.StripePaymentIntentID,
		&o.StripeCheckoutSessionID,
		&o.PaymentMethod,
		&o.Metadata,
		&o.CreatedAt,
		&o.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = types.OrderStatus(status)
	return &o, nil
}
