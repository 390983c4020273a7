package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate_Valid(t *testing.T) {
	cfg := &Config{
		Enabled:           true,
		TokenIssuer:       "https://lumen.example.com",
		AccessTokenSecret: "0123456789abcdef",
		AccessTokenExpiry: time.Hour,
	}
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_Disabled(t *testing.T) {
	cfg := &Config{Enabled: false}
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_Missing(t *testing.T) {
	cfg := &Config{Enabled: true}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_issuer")

	cfg.TokenIssuer = "https://lumen.example.com"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token_secret")

	cfg.AccessTokenSecret = "short"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")

	cfg.AccessTokenSecret = "0123456789abcdef"
	cfg.AccessTokenExpiry = -time.Second
	assert.Error(t, cfg.Validate())
}
