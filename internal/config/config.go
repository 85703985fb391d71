// Package config defines the process configuration for the storefront.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> *_FILE secret files -> Dotenv File (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"valor/internal/types"
)

// SecretString aliases types.SecretString so config structs can refer to it
// without importing types.
type SecretString = types.SecretString

type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"valor-storefront"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Redis         RedisConfig
	Stripe        StripeConfig
	CardSetup     CardSetupConfig
	KeySources    KeySourceConfig
	Email         EmailConfig
	Discord       DiscordConfig
	Admin         AdminConfig
	Fulfillment   FulfillmentConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not the environment.
	Build BuildInfo
}

type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	SiteURL            string        `envconfig:"SITE_URL" default:"http://localhost:3000" validate:"url"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig covers the optional AWS integrations: the notification queue and
// CloudWatch metrics. Both are disabled when left empty.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`
	EndpointURL       string `envconfig:"AWS_ENDPOINT_URL"`
}

// RedisConfig enables the cross-instance in-flight guard when URL is set.
type RedisConfig struct {
	URL         SecretString  `envconfig:"REDIS_URL"`
	InflightTTL time.Duration `envconfig:"FULFILLMENT_INFLIGHT_TTL" default:"60s"`
}

type StripeConfig struct {
	SecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY"`
	APIBase        string       `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"url"`
}

type CardSetupConfig struct {
	APIURL   string `envconfig:"CARDSETUP_API_URL" default:"https://dashboard.card-setup.com/api" validate:"url"`
	StoreURL string `envconfig:"CARDSETUP_STORE_URL"`
}

// KeySourceConfig holds the per-product supplier endpoints. A source is
// active only when both its URL and API key are set.
type KeySourceConfig struct {
	TempSpooferURL     string        `envconfig:"TEMP_SPOOFER_API_URL"`
	TempSpooferKey     SecretString  `envconfig:"TEMP_SPOOFER_API_KEY"`
	PermSpooferURL     string        `envconfig:"PERM_SPOOFER_API_URL"`
	PermSpooferKey     SecretString  `envconfig:"PERM_SPOOFER_API_KEY"`
	FortnitePublicURL  string        `envconfig:"FORTNITE_PUBLIC_API_URL"`
	FortnitePublicKey  SecretString  `envconfig:"FORTNITE_PUBLIC_API_KEY"`
	FortnitePrivateURL string        `envconfig:"FORTNITE_PRIVATE_API_URL"`
	FortnitePrivateKey SecretString  `envconfig:"FORTNITE_PRIVATE_API_KEY"`
	Timeout            time.Duration `envconfig:"KEY_SOURCE_TIMEOUT" default:"10s"`
}

// KeySourceEndpoint is one supplier API.
type KeySourceEndpoint struct {
	URL    string
	APIKey SecretString
	Method string
}

// Endpoints returns the configured endpoints keyed by product slug.
func (c KeySourceConfig) Endpoints() map[string]KeySourceEndpoint {
	all := map[string]KeySourceEndpoint{
		"temp-spoofer":     {URL: c.TempSpooferURL, APIKey: c.TempSpooferKey},
		"perm-spoofer":     {URL: c.PermSpooferURL, APIKey: c.PermSpooferKey},
		"fortnite-public":  {URL: c.FortnitePublicURL, APIKey: c.FortnitePublicKey},
		"fortnite-private": {URL: c.FortnitePrivateURL, APIKey: c.FortnitePrivateKey},
	}
	out := make(map[string]KeySourceEndpoint, len(all))
	for slug, ep := range all {
		if ep.URL == "" || !ep.APIKey.IsSet() {
			continue
		}
		ep.Method = "POST"
		out[slug] = ep
	}
	return out
}

type EmailConfig struct {
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"smtp" validate:"oneof=smtp sendgrid"`
	SMTPHost       string       `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort       int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser       string       `envconfig:"SMTP_USER"`
	SMTPPass       SecretString `envconfig:"SMTP_PASS"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Valor"`
}

// Enabled reports whether the selected provider has credentials.
func (c EmailConfig) Enabled() bool {
	if c.Provider == "sendgrid" {
		return c.SendGridAPIKey.IsSet() && c.FromAddress != ""
	}
	return c.SMTPUser != "" && c.SMTPPass.IsSet()
}

type DiscordConfig struct {
	WebhookURL SecretString `envconfig:"DISCORD_WEBHOOK_URL"`
}

type AdminConfig struct {
	Username     string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	PasswordHash SecretString  `envconfig:"ADMIN_PASSWORD_HASH"`
	JWTSecret    SecretString  `envconfig:"JWT_SECRET" validate:"required"`
	SessionTTL   time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`
}

type FulfillmentConfig struct {
	GatewayTimeout    time.Duration `envconfig:"FULFILLMENT_GATEWAY_TIMEOUT" default:"10s"`
	FulfillTimeout    time.Duration `envconfig:"FULFILLMENT_COMMIT_TIMEOUT" default:"30s"`
	SweepTimeout      time.Duration `envconfig:"FULFILLMENT_SWEEP_TIMEOUT" default:"5m"`
	SweepWorkers      int           `envconfig:"FULFILLMENT_SWEEP_WORKERS" default:"4" validate:"min=1,max=32"`
	LowStockThreshold int           `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`
	OrderPrefix       string        `envconfig:"ORDER_NUMBER_PREFIX" default:"JC" validate:"alphanum"`
}

type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Valor"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSecretFile ConfigErrorType = "SECRET_FILE_FAILURE"
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing    ConfigErrorType = "PARSING_FAILED"
)
