package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"valor/internal/types"
)

// CatalogRepo reads products and variants. Catalog writes belong to the admin
// tooling and are not exposed here.
type CatalogRepo struct {
	db DBTX
}

func NewCatalogRepo(db DBTX) *CatalogRepo {
	return &CatalogRepo{db: db}
}

const productColumns = `id, slug, name, game, status, image_url, created_at`

func (r *CatalogRepo) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *CatalogRepo) GetProductBySlug(ctx context.Context, slug string) (*types.Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug)
}

func (r *CatalogRepo) getProduct(ctx context.Context, sql, arg string) (*types.Product, error) {
	var (
		p      types.Product
		status string
	)
	err := r.db.QueryRow(ctx, sql, arg).Scan(&p.ID, &p.Slug, &p.Name, &p.Game, &status, &p.ImageURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load product", err)
	}
	p.Status = types.ProductStatus(status)
	return &p, nil
}

func (r *CatalogRepo) GetVariant(ctx context.Context, id string) (*types.Variant, error) {
	var v types.Variant
	err := r.db.QueryRow(ctx,
		`SELECT id, product_id, name, duration_days, price_cents, active, created_at
		 FROM product_variants WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.ProductID, &v.Name, &v.DurationDays, &v.PriceCents, &v.Active, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load variant", err)
	}
	return &v, nil
}
