// Package checkout creates pending orders and their gateway payments, and
// prices them with coupons.
package checkout

import (
	"context"
	"errors"
	"time"

	"valor/internal/types"
)

// Coupon rejection reasons. All of them surface to the customer as the same
// "Invalid or expired coupon code" message.
var (
	ErrCouponInactive   = errors.New("coupon is inactive")
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrCouponMinimum    = errors.New("order is below the coupon minimum")
)

// CheckCoupon reports why c cannot be applied to an order of amountCents at
// now, or nil when it can.
func CheckCoupon(c *types.Coupon, amountCents int64, now time.Time) error {
	switch {
	case !c.Active:
		return ErrCouponInactive
	case now.Before(c.ValidFrom):
		return ErrCouponNotStarted
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return ErrCouponExpired
	case c.MaxUses != nil && *c.MaxUses > 0 && c.CurrentUses >= *c.MaxUses:
		return ErrCouponExhausted
	case amountCents < c.MinOrderCents:
		return ErrCouponMinimum
	}
	return nil
}

// Discount returns the amount taken off amountCents. Percentages round half
// up to the cent; the discount never exceeds the amount.
func Discount(c *types.Coupon, amountCents int64) int64 {
	var d int64
	switch c.DiscountType {
	case types.DiscountPercentage:
		d = (amountCents*c.DiscountValue + 50) / 100
	case types.DiscountFixed:
		d = c.DiscountValue
	}
	return max(0, min(d, amountCents))
}

// Quote is the priced order.
type Quote struct {
	OriginalCents int64
	DiscountCents int64
	FinalCents    int64
	// Coupon is set only when a valid coupon was applied.
	Coupon *types.Coupon
}

// Pricing resolves coupon codes against the coupon table.
type Pricing struct {
	coupons types.CouponRepository
	clock   types.Clock
}

func NewPricing(coupons types.CouponRepository, clock types.Clock) *Pricing {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Pricing{coupons: coupons, clock: clock}
}

// Quote prices an order. An unknown or invalid coupon is ignored and the
// full price is charged; the returned error is non-nil only for lookup
// failures.
func (p *Pricing) Quote(ctx context.Context, code string, priceCents int64) (Quote, error) {
	q := Quote{OriginalCents: priceCents, FinalCents: priceCents}
	c, err := p.lookup(ctx, code, priceCents)
	if err != nil || c == nil {
		return q, err
	}
	q.Coupon = c
	q.DiscountCents = Discount(c, priceCents)
	q.FinalCents = priceCents - q.DiscountCents
	return q, nil
}

// lookup returns the coupon for code when it applies to priceCents.
func (p *Pricing) lookup(ctx context.Context, code string, priceCents int64) (*types.Coupon, error) {
	code = types.NormalizeCouponCode(code)
	if code == "" {
		return nil, nil
	}
	c, err := p.coupons.GetByCode(ctx, code)
	if err != nil || c == nil {
		return nil, err
	}
	if CheckCoupon(c, priceCents, p.clock.Now()) != nil {
		return nil, nil
	}
	return c, nil
}
