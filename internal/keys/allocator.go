package keys

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"valor/internal/types"
)

// Request describes the key to allocate for one order.
type Request struct {
	VariantID    string
	OrderID      string
	DurationDays *int
	// ExplicitKey is a key obtained from a supplier. When empty a key is minted.
	ExplicitKey string
}

// KeyWriter is the slice of the key repository the allocator needs.
type KeyWriter interface {
	Insert(ctx context.Context, k *types.LicenseKey) error
}

// Allocator writes exactly one key record per call, already bound to the order.
type Allocator struct {
	gen    *Generator
	clock  types.Clock
	logger *slog.Logger
}

func NewAllocator(gen *Generator, clock types.Clock, logger *slog.Logger) *Allocator {
	if gen == nil {
		gen = NewGenerator()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{gen: gen, clock: clock, logger: logger.With("component", "key_allocator")}
}

// ExpiresAt computes the expiry for a key assigned at now. Nil or
// non-positive durations mean lifetime access.
func ExpiresAt(now time.Time, durationDays *int) *time.Time {
	if durationDays == nil || *durationDays <= 0 {
		return nil
	}
	t := now.Add(time.Duration(*durationDays) * 24 * time.Hour)
	return &t
}

// Allocate writes the key through store, which is normally the transaction
// scoped repository so the key and the order transition commit together.
func (a *Allocator) Allocate(ctx context.Context, store KeyWriter, req Request) (*types.LicenseKey, error) {
	value := req.ExplicitKey
	if value == "" {
		var err error
		if value, err = a.gen.Generate(); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalKeyAllocation, "failed to generate license key", err)
		}
	}

	now := a.clock.Now()
	orderID := req.OrderID
	k := &types.LicenseKey{
		VariantID:       req.VariantID,
		LicenseKey:      value,
		Status:          types.KeyStatusUsed,
		AssignedToOrder: &orderID,
		AssignedAt:      &now,
		ExpiresAt:       ExpiresAt(now, req.DurationDays),
	}
	if err := store.Insert(ctx, k); err != nil {
		if types.IsCode(err, types.ErrCodeConflictTransition) || errors.Is(err, types.ErrKeyValueTaken) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeInternalKeyAllocation, "failed to persist license key", err)
	}

	a.logger.InfoContext(ctx, "license key allocated",
		"order_id", req.OrderID,
		"variant_id", req.VariantID,
		"key_id", k.ID,
		"explicit", req.ExplicitKey != "",
		"lifetime", k.ExpiresAt == nil,
	)
	return k, nil
}
