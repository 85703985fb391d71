package types

import (
	"strings"
	"time"
)

// ProductStatus is the detection status shown on the storefront.
type ProductStatus string

const (
	ProductStatusUndetected ProductStatus = "undetected"
	ProductStatusUpdating   ProductStatus = "updating"
	ProductStatusDown       ProductStatus = "down"
	ProductStatusTesting    ProductStatus = "testing"
)

type Product struct {
	ID        string        `json:"id"`
	Slug      string        `json:"slug"`
	Name      string        `json:"name"`
	Game      string        `json:"game"`
	Status    ProductStatus `json:"status"`
	ImageURL  *string       `json:"image_url,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Variant is a purchasable duration of a product. A nil DurationDays means a
// lifetime key.
type Variant struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	Name         string    `json:"name"`
	DurationDays *int      `json:"duration_days,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	MaxUses       *int         `json:"max_uses,omitempty"`
	CurrentUses   int          `json:"current_uses"`
	MinOrderCents int64        `json:"min_order_cents"`
	ValidFrom     time.Time    `json:"valid_from"`
	ValidUntil    *time.Time   `json:"valid_until,omitempty"`
	Active        bool         `json:"active"`
}

// NormalizeCouponCode upper-cases and trims a customer-entered code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PaymentProvider selects which checkout paths are offered.
type PaymentProvider string

const (
	ProviderStripe    PaymentProvider = "stripe"
	ProviderCardSetup PaymentProvider = "cardsetup"
	ProviderBoth      PaymentProvider = "both"
)

// Allows reports whether checkout through p is enabled under this setting.
func (pp PaymentProvider) Allows(p PaymentProvider) bool {
	return pp == ProviderBoth || pp == p
}

// SiteSettings are the operator-editable storefront settings.
type SiteSettings struct {
	PaymentProvider   PaymentProvider
	CardSetupStoreURL string
	SiteName          string
	SiteURL           string
	MaintenanceMode   bool
}
