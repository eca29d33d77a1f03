package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-intake/internal/auth"
	"github.com/spec-kit/support-intake/internal/config"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePassword(hash, "s3cret"))
	assert.Error(t, auth.ComparePassword(hash, "wrong"))
}

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager("unit-test-secret", 5)

	token, expiresAt, err := tm.GenerateToken("admin@example.com")
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
}

func TestParseToken_RejectsWrongSecret(t *testing.T) {
	token, _, err := auth.NewTokenManager("secret-a", 5).GenerateToken("admin@example.com")
	require.NoError(t, err)

	_, err = auth.NewTokenManager("secret-b", 5).ParseToken(token)
	assert.Error(t, err)
}

func newAuthenticator(t *testing.T, password string) *auth.AdminAuthenticator {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return auth.NewAdminAuthenticator(config.AuthConfig{
		JWTSecret:             "unit-test-secret",
		AccessTokenTTLMinutes: 5,
		AdminEmail:            "Admin@Example.com",
		AdminPasswordHash:     hash,
	})
}

func TestAdminLogin(t *testing.T) {
	authenticator := newAuthenticator(t, "s3cret")

	token, _, err := authenticator.Login("admin@example.com", "s3cret")
	require.NoError(t, err)

	claims, err := authenticator.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
}

func TestAdminLogin_InvalidCredentials(t *testing.T) {
	authenticator := newAuthenticator(t, "s3cret")

	_, _, err := authenticator.Login("admin@example.com", "wrong")
	assert.Error(t, err)

	_, _, err = authenticator.Login("other@example.com", "s3cret")
	assert.Error(t, err)
}

func TestAdminLogin_UnconfiguredHash(t *testing.T) {
	authenticator := auth.NewAdminAuthenticator(config.AuthConfig{
		JWTSecret:  "unit-test-secret",
		AdminEmail: "admin@example.com",
	})
	_, _, err := authenticator.Login("admin@example.com", "anything")
	assert.Error(t, err)
}
