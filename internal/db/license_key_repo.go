package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"valor/internal/types"
)

const keyColumns = `id, variant_id, license_key, status, assigned_to_order, assigned_at, expires_at, created_at`

// LicenseKeyRepo implements types.LicenseKeyRepository.
type LicenseKeyRepo struct {
	db DBTX
}

func NewLicenseKeyRepo(db DBTX) *LicenseKeyRepo {
	return &LicenseKeyRepo{db: db}
}

// Insert writes a key record and fills in the generated id and created_at.
// A second key for the same order is a lost race (conflict_transition_rejected);
// a duplicate key value wraps types.ErrKeyValueTaken.
func (r *LicenseKeyRepo) Insert(ctx context.Context, k *types.LicenseKey) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO license_keys (variant_id, license_key, status, assigned_to_order, assigned_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		k.VariantID,
		k.LicenseKey,
		string(k.Status),
		k.AssignedToOrder,
		k.AssignedAt,
		k.ExpiresAt,
	).Scan(&k.ID, &k.CreatedAt)
	if isUniqueViolation(err) {
		if violatedConstraint(err) == oneKeyPerOrderIndex {
			return types.NewAppError(types.ErrCodeConflictTransition, "license key already exists for this order", err)
		}
		return types.NewAppError(types.ErrCodeInternalKeyAllocation, "license key value already issued", errors.Join(types.ErrKeyValueTaken, err))
	}
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert license key", err)
	}
	return nil
}

func (r *LicenseKeyRepo) GetByID(ctx context.Context, id string) (*types.LicenseKey, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE id = $1`, id)
}

func (r *LicenseKeyRepo) GetByOrder(ctx context.Context, orderID string) (*types.LicenseKey, error) {
	return r.getOne(ctx, `SELECT `+keyColumns+` FROM license_keys WHERE assigned_to_order = $1`, orderID)
}

func (r *LicenseKeyRepo) getOne(ctx context.Context, sql, arg string) (*types.LicenseKey, error) {
	var (
		k      types.LicenseKey
		status string
	)
	err := r.db.QueryRow(ctx, sql, arg).Scan(
		&k.ID,
		&k.VariantID,
		&k.LicenseKey,
		&status,
		&k.AssignedToOrder,
		&k.AssignedAt,
		&k.ExpiresAt,
		&k.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load license key", err)
	}
	k.Status = types.KeyStatus(status)
	return &k, nil
}

// CountUnused returns the pre-stocked keys still available for a variant.
func (r *LicenseKeyRepo) CountUnused(ctx context.Context, variantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM license_keys WHERE variant_id = $1 AND status = 'unused'`,
		variantID,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unused keys", err)
	}
	return n, nil
}
