// Package auth authenticates storefront operators. A single admin account is
// configured through the environment; sessions are stateless HS256 tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"valor/internal/types"
)

const (
	issuer     = "valor-admin"
	defaultTTL = 24 * time.Hour
	bcryptCost = 12
)

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

type bcryptHasher struct{}

func (bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	return bcryptHasher{}.GenerateFromPassword(password)
}

type AdminConfig struct {
	Username     string
	PasswordHash string
	JWTSecret    string
	SessionTTL   time.Duration
	Hasher       PasswordHasher
	Clock        types.Clock
	Logger       *slog.Logger
}

// Session is an issued admin token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type adminClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AdminAuthenticator checks admin credentials and issues and verifies
// session tokens.
type AdminAuthenticator struct {
	username     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
	hasher       PasswordHasher
	clock        types.Clock
	logger       *slog.Logger
}

func NewAdminAuthenticator(cfg AdminConfig) (*AdminAuthenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: JWT secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultTTL
	}
	if cfg.Hasher == nil {
		cfg.Hasher = bcryptHasher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AdminAuthenticator{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		secret:       []byte(cfg.JWTSecret),
		ttl:          cfg.SessionTTL,
		hasher:       cfg.Hasher,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("component", "admin_auth"),
	}, nil
}

// Login verifies the credentials and issues a session. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (a *AdminAuthenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	invalid := types.NewAppError(types.ErrCodeAuthInvalidCreds, "Invalid username or password", nil)

	if a.passwordHash == "" {
		a.logger.WarnContext(ctx, "admin login attempted but no password hash is configured")
		return nil, invalid
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passErr := a.hasher.CompareHashAndPassword(a.passwordHash, password)
	if !userOK || passErr != nil {
		a.logger.WarnContext(ctx, "admin login failed", "username", username)
		return nil, invalid
	}

	now := a.clock.Now()
	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sign session token", err)
	}

	a.logger.InfoContext(ctx, "admin logged in", "username", a.username)
	return &Session{Token: signed, ExpiresAt: expires}, nil
}

// Verify parses a session token.
func (a *AdminAuthenticator) Verify(raw string) (types.AdminSession, error) {
	parsed, err := jwt.ParseWithClaims(raw, &adminClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.AdminSession{}, types.NewAppError(types.ErrCodeAuthTokenExpired, "Session expired", err)
		}
		return types.AdminSession{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid session token", err)
	}

	claims, ok := parsed.Claims.(*adminClaims)
	if !ok || !parsed.Valid || !claims.Admin {
		return types.AdminSession{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid session token", nil)
	}
	return types.AdminSession{Username: claims.Subject, IsAdmin: true}, nil
}
