package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"valor/internal/types"
)

type CouponRepo struct {
	db     DBTX
	logger *slog.Logger
}

func NewCouponRepo(db DBTX, logger *slog.Logger) *CouponRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CouponRepo{db: db, logger: logger}
}

// GetByCode looks a coupon up by its normalized code. Validity windows and
// usage limits are checked by the caller.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*types.Coupon, error) {
	var (
		c     types.Coupon
		dtype string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, code, discount_type, discount_value, max_uses, current_uses,
		        min_order_cents, valid_from, valid_until, active
		 FROM coupons WHERE code = $1`,
		types.NormalizeCouponCode(code),
	).Scan(
		&c.ID,
		&c.Code,
		&dtype,
		&c.DiscountValue,
		&c.MaxUses,
		&c.CurrentUses,
		&c.MinOrderCents,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load coupon", err)
	}
	c.DiscountType = types.DiscountType(dtype)
	return &c, nil
}

// IncrementUsage bumps current_uses by one. A missing coupon is logged and
// ignored so a deleted coupon cannot block fulfillment.
func (r *CouponRepo) IncrementUsage(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE coupons SET current_uses = current_uses + 1 WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment coupon usage", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "coupon usage increment matched no row", "coupon_id", id)
	}
	return nil
}
