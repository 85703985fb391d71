package types

import "time"

type KeyStatus string

const (
	KeyStatusUnused  KeyStatus = "unused"
	KeyStatusUsed    KeyStatus = "used"
	KeyStatusExpired KeyStatus = "expired"
	KeyStatusRevoked KeyStatus = "revoked"
)

// LicenseKey is a key record. A nil ExpiresAt means lifetime access.
type LicenseKey struct {
	ID              string     `json:"id"`
	VariantID       string     `json:"variant_id"`
	LicenseKey      string     `json:"license_key"`
	Status          KeyStatus  `json:"status"`
	AssignedToOrder *string    `json:"assigned_to_order,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EmailLogEntry records one outbound confirmation email.
type EmailLogEntry struct {
	ToEmail     string
	Subject     string
	HTMLContent string
	SentAt      time.Time
}
