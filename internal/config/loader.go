package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and names the loading stage that failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks variables that point at a file holding the value,
// e.g. STRIPE_SECRET_KEY_FILE=/run/secrets/stripe_key.
const secretFileSuffix = "_FILE"

type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	readFile  func(name string) ([]byte, error)
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		readFile:  os.ReadFile,
	}
}

// LoadConfig loads .env, resolves *_FILE secrets, populates Config from the
// environment and validates it.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// Missing .env is fine; existing variables are never overridden.
	_ = godotenv.Load()

	if err := resolveSecretFiles(deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()
	cfg.CardSetup.StoreURL = normalizeStoreURL(cfg.CardSetup.StoreURL)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// resolveSecretFiles reads every FOO_FILE variable and exports its trimmed
// contents as FOO, unless FOO is already set.
func resolveSecretFiles(deps loaderDeps) error {
	for _, entry := range deps.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key, path := entry[:eq], entry[eq+1:]
		if !strings.HasSuffix(key, secretFileSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		data, err := deps.readFile(path)
		if err != nil {
			return &ConfigError{
				Type:    ErrSecretFile,
				Message: fmt.Sprintf("failed to read secret file for %s", target),
				Err:     err,
			}
		}
		if err := deps.setEnv(target, strings.TrimSpace(string(data))); err != nil {
			return &ConfigError{
				Type:    ErrSecretFile,
				Message: fmt.Sprintf("failed to export %s", target),
				Err:     err,
			}
		}
	}
	return nil
}

// normalizeStoreURL ensures a trailing slash so callback paths can be appended.
func normalizeStoreURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
