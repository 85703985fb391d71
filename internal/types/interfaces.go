package types

import "context"

// Validator is implemented by request DTOs that check themselves.
type Validator interface {
	Validate() error
}

// OrderRepository is the data access interface for orders. Lookups return
// (nil, nil) when no row matches.
type OrderRepository interface {
	Create(ctx context.Context, in NewOrder) (*Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*Order, error)
	GetDetails(ctx context.Context, id string) (*OrderDetails, error)
	ListPending(ctx context.Context) ([]Order, error)

	// UpdateStatus is the only way an order's status changes. It returns
	// ErrTransitionRejected when AllowedFrom is set and did not match.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Order, error)

	// MergeMetadata merges keys into the metadata of an order without
	// touching its status.
	MergeMetadata(ctx context.Context, id string, m Metadata) error
}

// LicenseKeyRepository is the data access interface for license keys.
type LicenseKeyRepository interface {
	Insert(ctx context.Context, k *LicenseKey) error
	GetByID(ctx context.Context, id string) (*LicenseKey, error)
	GetByOrder(ctx context.Context, orderID string) (*LicenseKey, error)
	CountUnused(ctx context.Context, variantID string) (int, error)
}

// CatalogRepository reads products and variants.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
}

// CouponRepository reads coupons and advances their usage counter.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	IncrementUsage(ctx context.Context, id string) error
}

// SettingsRepository loads site settings with defaults applied.
type SettingsRepository interface {
	Load(ctx context.Context) (SiteSettings, error)
}

// EmailLogRepository records sent emails.
type EmailLogRepository interface {
	Record(ctx context.Context, e EmailLogEntry) error
}

// TxRepos exposes the repositories bound to one database transaction.
type TxRepos interface {
	Orders() OrderRepository
	LicenseKeys() LicenseKeyRepository
	Coupons() CouponRepository
}

// TransactionManager runs fn inside a transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}
