package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestAuthConfig() *Config {
	return &Config{
		Enabled:           true,
		TokenIssuer:       "https://lumen.example.com",
		AccessTokenSecret: "access-secret-0123456789",
		AccessTokenExpiry: 10 * time.Second,
	}
}

func TestAuthService_IsEnabled(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())
	assert.True(t, svc.IsEnabled())

	svc = NewAuthService(&Config{})
	assert.False(t, svc.IsEnabled())
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())

	token, err := svc.IssueAccessToken("ci-pipeline", 0)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ci-pipeline", claims.Subject)
	assert.Equal(t, AccessToken, claims.Type)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(10*time.Second), claims.ExpiresAt.Time, 2*time.Second)
}

func TestAuthService_IssueCustomExpiry(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())

	token, err := svc.IssueAccessToken("ci-pipeline", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 2*time.Second)
}

func TestAuthService_IssueRejectsEmptySubject(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())
	_, err := svc.IssueAccessToken("", 0)
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestAuthService_ValidateInvalid(t *testing.T) {
	svc := NewAuthService(getTestAuthConfig())
	ctx := context.Background()

	_, err := svc.ValidateAccessToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	_, err = svc.ValidateAccessToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	other := NewAuthService(&Config{
		Enabled:           true,
		TokenIssuer:       "https://lumen.example.com",
		AccessTokenSecret: "a-different-secret-value",
	})
	token, err := other.IssueAccessToken("ci-pipeline", time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestAuthService_ValidateWrongType(t *testing.T) {
	cfg := getTestAuthConfig()
	svc := NewAuthService(cfg)

	token, err := createTestToken("ci-pipeline", cfg.TokenIssuer, cfg.AccessTokenSecret, time.Minute, "refresh")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
	assert.Contains(t, err.Error(), "wrong token type")
}
