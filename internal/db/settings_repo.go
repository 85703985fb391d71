package db

import (
	"context"
	"encoding/json"
	"log/slog"

	"valor/internal/types"
)

// SettingsRepo reads the key/value site_settings table.
type SettingsRepo struct {
	db       DBTX
	defaults types.SiteSettings
	logger   *slog.Logger
}

// NewSettingsRepo creates a SettingsRepo. Keys missing from the table fall
// back to defaults.
func NewSettingsRepo(db DBTX, defaults types.SiteSettings, logger *slog.Logger) *SettingsRepo {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.PaymentProvider == "" {
		defaults.PaymentProvider = types.ProviderStripe
	}
	return &SettingsRepo{db: db, defaults: defaults, logger: logger}
}

// Load returns the current settings. A failed query yields the defaults, the
// same as an empty table.
func (r *SettingsRepo) Load(ctx context.Context) (types.SiteSettings, error) {
	s := r.defaults

	rows, err := r.db.Query(ctx, `SELECT key, value FROM site_settings`)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to load site settings, using defaults", "error", err)
		return s, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return r.defaults, types.NewAppError(types.ErrCodeInternalDB, "failed to scan site setting", err)
		}
		if err := applySetting(&s, key, raw); err != nil {
			r.logger.WarnContext(ctx, "ignoring malformed site setting", "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return r.defaults, types.NewAppError(types.ErrCodeInternalDB, "failed to read site settings", err)
	}
	return s, nil
}

func applySetting(s *types.SiteSettings, key string, raw []byte) error {
	switch key {
	case "payment_provider":
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		switch p := types.PaymentProvider(v); p {
		case types.ProviderStripe, types.ProviderCardSetup, types.ProviderBoth:
			s.PaymentProvider = p
		}
	case "cardsetup_store_url":
		return json.Unmarshal(raw, &s.CardSetupStoreURL)
	case "site_name":
		return json.Unmarshal(raw, &s.SiteName)
	case "site_url":
		return json.Unmarshal(raw, &s.SiteURL)
	case "maintenance_mode":
		return json.Unmarshal(raw, &s.MaintenanceMode)
	}
	return nil
}
