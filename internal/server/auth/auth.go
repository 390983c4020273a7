package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService issues and validates the bearer tokens guarding the upload api
type AuthService struct {
	config *Config
}

func NewAuthService(config *Config) *AuthService {
	return &AuthService{config: config}
}

func (s *AuthService) IsEnabled() bool {
	return s.config.Enabled
}

// IssueAccessToken mints an access token for subject. A non-positive expiry uses the configured one.
func (s *AuthService) IssueAccessToken(subject string, expiry time.Duration) (string, error) {
	if subject == "" {
		return "", ErrInvalidSubject
	}
	if expiry <= 0 {
		expiry = s.config.AccessTokenExpiry
	}

	token, err := newToken(subject, s.config.TokenIssuer, s.config.AccessTokenSecret, expiry, AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	slog.Debug("access token issued", "subject", subject, "expiry", expiry)
	return token, nil
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}

	claims, err := ParseClaims(accessToken, s.config.AccessTokenSecret, s.config.TokenIssuer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}

	if claims.Type != AccessToken {
		return nil, fmt.Errorf("%w: wrong token type got %q", ErrInvalidAccessToken, claims.Type)
	}

	return claims, nil
}

func newToken(subject, issuer, jwtSecret string, expiry time.Duration, tokenType AuthTokenType) (string, error) {
	var expiryTime *jwt.NumericDate

	if expiry > 0 {
		expiryTime = jwt.NewNumericDate(time.Now().Add(expiry))
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: expiryTime,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Type: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
