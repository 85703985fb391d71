// Package bootstrap assembles the storefront's runtime graph from Config:
// the Postgres pool, the optional Redis guard, vendor clients, the
// notification path and the domain services built on them. Every binary
// that touches orders starts here.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"valor/internal/auth"
	"valor/internal/cache"
	"valor/internal/checkout"
	"valor/internal/config"
	"valor/internal/db"
	"valor/internal/external"
	"valor/internal/fulfillment"
	"valor/internal/keys"
	"valor/internal/notifications"
	"valor/internal/telemetry"
	"valor/internal/types"
)

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Components is the assembled graph. RequestMetrics is nil unless
// ENABLE_METRICS is set.
type Components struct {
	Orchestrator   *fulfillment.Orchestrator
	Checkout       *checkout.Service
	Orders         *db.OrderRepo
	Admin          *auth.AdminAuthenticator
	Registry       *external.ClientRegistry
	RequestMetrics *telemetry.CloudWatchMetrics
	Probes         []Probe

	closers []func() error
	logger  *slog.Logger
}

// Close releases the backing stores in reverse order of acquisition.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Error("cleanup failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	c.closers = nil
	return first
}

// Build connects everything. On error whatever was already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	clock := types.RealClock{}
	prefix := cfg.Fulfillment.OrderPrefix

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })
	c.Probes = append(c.Probes, Probe{Name: "database", Check: pool.Ping})

	var guard cache.InflightGuard
	if cfg.Redis.URL.IsSet() {
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		guard = cache.NewRedisInflightGuard(client, cfg.Redis.InflightTTL, logger)
		c.Probes = append(c.Probes, Probe{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	} else {
		logger.Warn("REDIS_URL not set; in-flight guard is process-local only")
	}

	registry, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building vendor clients: %w", err)
	}
	c.Registry = registry

	var awsCfg aws.Config
	if cfg.AWS.NotificationQueue != "" || cfg.Observability.EnableMetrics {
		awsCfg, err = LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
	}

	var metrics telemetry.Metrics = telemetry.NoopMetrics{}
	if cfg.Observability.EnableMetrics {
		cw := telemetry.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
		metrics = cw
		c.RequestMetrics = cw
	}

	c.Orders = db.NewOrderRepo(pool, prefix, logger)

	notifier, err := newNotifier(cfg, awsCfg, registry, db.NewEmailLogRepo(pool), clock, logger)
	if err != nil {
		return nil, err
	}

	c.Orchestrator = fulfillment.NewOrchestrator(fulfillment.Deps{
		Orders:     c.Orders,
		Keys:       db.NewLicenseKeyRepo(pool),
		Tx:         db.NewTxManager(pool, prefix, logger),
		Allocator:  keys.NewAllocator(keys.NewGenerator(), clock, logger),
		Payments:   registry.Payments,
		CardSetup:  registry.CardSetup,
		KeySources: registry.KeySources,
		Notifier:   notifier,
		Guard:      guard,
		Metrics:    metrics,
		Clock:      clock,
		Logger:     logger,
	}, fulfillment.Config{
		GatewayTimeout:    cfg.Fulfillment.GatewayTimeout,
		FulfillTimeout:    cfg.Fulfillment.FulfillTimeout,
		SweepWorkers:      cfg.Fulfillment.SweepWorkers,
		LowStockThreshold: cfg.Fulfillment.LowStockThreshold,
	})

	settings := db.NewSettingsRepo(pool, types.SiteSettings{
		CardSetupStoreURL: cfg.CardSetup.StoreURL,
		SiteURL:           cfg.Server.SiteURL,
	}, logger)
	c.Checkout = checkout.NewService(checkout.Deps{
		Catalog:   db.NewCatalogRepo(pool),
		Orders:    c.Orders,
		Settings:  settings,
		Pricing:   checkout.NewPricing(db.NewCouponRepo(pool, logger), clock),
		Payments:  registry.Payments,
		CardSetup: registry.CardSetup,
		Logger:    logger,
	}, checkout.Config{
		SiteURL:           cfg.Server.SiteURL,
		CardSetupStoreURL: cfg.CardSetup.StoreURL,
	})

	c.Admin, err = auth.NewAdminAuthenticator(auth.AdminConfig{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash.Unmask(),
		JWTSecret:    cfg.Admin.JWTSecret.Unmask(),
		SessionTTL:   cfg.Admin.SessionTTL,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building admin auth: %w", err)
	}
	if !cfg.Admin.PasswordHash.IsSet() {
		logger.Warn("ADMIN_PASSWORD_HASH not set; admin login is disabled")
	}

	return c, nil
}

// NewDeliverySink builds the in-process notifier: email through the
// configured provider, alerts through Discord, and the email log.
func NewDeliverySink(cfg *config.Config, registry *external.ClientRegistry, emailLog types.EmailLogRepository, clock types.Clock, logger *slog.Logger) (*notifications.Sink, error) {
	renderer, err := notifications.NewRenderer("", cfg.Server.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("building email renderer: %w", err)
	}
	return notifications.NewSink(notifications.SinkConfig{
		Email:    registry.Email,
		Discord:  registry.Discord,
		Renderer: renderer,
		EmailLog: emailLog,
		Clock:    clock,
		Logger:   logger,
	}), nil
}

// newNotifier enqueues on SQS when a queue is configured and otherwise
// delivers in-process.
func newNotifier(cfg *config.Config, awsCfg aws.Config, registry *external.ClientRegistry, emailLog types.EmailLogRepository, clock types.Clock, logger *slog.Logger) (notifications.Notifier, error) {
	if cfg.AWS.NotificationQueue != "" {
		logger.Info("notifications routed through SQS", "queue_url", cfg.AWS.NotificationQueue)
		return notifications.NewQueuePublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.NotificationQueue, logger), nil
	}
	sink, err := NewDeliverySink(cfg, registry, emailLog, clock, logger)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// LoadAWSConfig loads the default credential chain for the configured
// region. AWS_ENDPOINT_URL points every client at a local emulator.
func LoadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if c.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.EndpointURL)
	}
	return awsCfg, nil
}

// NewLogger returns the JSON logger every binary writes to stdout.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
