package auth

import (
	"strings"
	"time"

	"github.com/spec-kit/support-intake/internal/config"
	apperrors "github.com/spec-kit/support-intake/pkg/util/errorutil"
)

// AdminAuthenticator validates the env-configured admin credentials and
// issues access tokens.
type AdminAuthenticator struct {
	email        string
	passwordHash string
	tokens       *TokenManager
}

// NewAdminAuthenticator constructs the authenticator.
func NewAdminAuthenticator(cfg config.AuthConfig) *AdminAuthenticator {
	return &AdminAuthenticator{
		email:        strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		passwordHash: cfg.AdminPasswordHash,
		tokens:       NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the underlying token manager for middleware wiring.
func (a *AdminAuthenticator) TokenManager() *TokenManager {
	return a.tokens
}

// Login verifies credentials and returns a signed token with its expiry.
func (a *AdminAuthenticator) Login(email, password string) (string, time.Time, error) {
	if a.passwordHash == "" {
		return "", time.Time{}, apperrors.NewUnauthorized("admin access not configured")
	}
	if strings.ToLower(strings.TrimSpace(email)) != a.email {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := ComparePassword(a.passwordHash, password); err != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return a.tokens.GenerateToken(a.email)
}
