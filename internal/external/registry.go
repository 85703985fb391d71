package external

import (
	"log/slog"
	"net/http"
	"time"

	"valor/internal/config"
)

// ClientRegistry holds every vendor client the service uses. Email and
// Discord are nil when not configured; callers treat nil as a silent no-op.
type ClientRegistry struct {
	Payments       PaymentGateway
	CardSetup      CardSetupGateway
	StripeVerifier WebhookVerifier
	KeySources     KeySource
	Email          EmailSender
	Discord        DiscordPoster
}

// NewClientRegistry initializes all vendor clients. With IS_TEST_MODE or
// APP_ENV=local the payment gateways are stubs and unconfigured notification
// channels log instead of staying silent.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	useStubs := cfg.IsTestMode || cfg.Environment == "local"
	if useStubs {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(cfg, logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode", "environment", cfg.Environment)
	return newProductionRegistry(cfg, logger), nil
}

func newStubRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	reg := &ClientRegistry{
		Payments:       NewStubPaymentGateway(stubLogger),
		CardSetup:      NewStubCardSetupGateway(stubLogger),
		StripeVerifier: NewStubWebhookVerifier(stubLogger),
		KeySources:     newKeySources(cfg, logger),
		Email:          NewStubEmailSender(stubLogger),
		Discord:        NewStubDiscordPoster(stubLogger),
	}
	// Real channels still win when credentials are present locally.
	if email := newEmailSender(cfg, logger); email != nil {
		reg.Email = email
	}
	if discord := newDiscord(cfg, logger); discord != nil {
		reg.Discord = discord
	}
	return reg
}

func newProductionRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	// Gateway calls are further bounded by the orchestrator's deadline.
	gatewayHTTP := &http.Client{Timeout: 20 * time.Second}

	reg := &ClientRegistry{
		Payments: NewStripeClient(gatewayHTTP, StripeClientConfig{
			SecretKey: cfg.Stripe.SecretKey.Unmask(),
			BaseURL:   cfg.Stripe.APIBase,
			Logger:    logger.With("client", "stripe"),
		}),
		CardSetup: NewCardSetupClient(gatewayHTTP, CardSetupClientConfig{
			BaseURL: cfg.CardSetup.APIURL,
			Logger:  logger.With("client", "cardsetup"),
		}),
		StripeVerifier: &StripeVerifier{},
		KeySources:     newKeySources(cfg, logger),
	}
	if email := newEmailSender(cfg, logger); email != nil {
		reg.Email = email
	}
	if discord := newDiscord(cfg, logger); discord != nil {
		reg.Discord = discord
	}
	return reg
}

func newKeySources(cfg *config.Config, logger *slog.Logger) *KeySourceClient {
	endpoints := make(map[string]SupplierEndpoint)
	for slug, ep := range cfg.KeySources.Endpoints() {
		endpoints[slug] = SupplierEndpoint{URL: ep.URL, APIKey: ep.APIKey.Unmask(), Method: ep.Method}
	}
	return NewKeySourceClient(
		&http.Client{Timeout: cfg.KeySources.Timeout},
		endpoints,
		cfg.KeySources.Timeout,
		logger.With("client", "key-sources"),
	)
}

// newEmailSender returns nil when the selected provider lacks credentials.
func newEmailSender(cfg *config.Config, logger *slog.Logger) EmailSender {
	if !cfg.Email.Enabled() {
		return nil
	}
	if cfg.Email.Provider == "sendgrid" {
		return NewSendGridClient(&http.Client{Timeout: 10 * time.Second}, SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey.Unmask(),
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      logger.With("client", "sendgrid"),
		})
	}
	return NewSMTPSender(SMTPConfig{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		Username:    cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPass.Unmask(),
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Logger:      logger.With("client", "smtp"),
	})
}

func newDiscord(cfg *config.Config, logger *slog.Logger) DiscordPoster {
	if !cfg.Discord.WebhookURL.IsSet() {
		return nil
	}
	return NewDiscordClient(&http.Client{Timeout: 10 * time.Second}, cfg.Discord.WebhookURL.Unmask(), logger.With("client", "discord"))
}
