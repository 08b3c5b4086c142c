// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package auth provides authentication: password login, JWT issuance and
// validation, and token revocation.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
)

// JWT errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenNotYetValid = errors.New("token not yet valid")
)

// TokenType represents the type of JWT token.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// JWTConfig contains configuration for the JWT service.
type JWTConfig struct {
	// Secret is the signing key for access tokens (required)
	Secret string

	// RefreshSecret is the signing key for refresh tokens (defaults to Secret if empty)
	RefreshSecret string

	// Issuer is the token issuer claim
	Issuer string

	// AccessTokenTTL is the access token lifetime (default: 15 minutes)
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the refresh token lifetime (default: 7 days)
	RefreshTokenTTL time.Duration

	// TokenIDGenerator generates unique token IDs (default: UUID)
	TokenIDGenerator func() string
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:          secret,
		RefreshSecret:   secret,
		Issuer:          "taskloop",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		TokenIDGenerator: func() string {
			return uuid.New().String()
		},
	}
}

// Claims represents the JWT claims for access tokens.
type Claims struct {
	EmployeeID string        `json:"employee_id"`
	TenantID   string        `json:"tenant_id"`
	Username   string        `json:"username"`
	Email      string        `json:"email,omitempty"`
	Roles      []models.Role `json:"roles"`
	Type       TokenType     `json:"type"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role models.Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshClaims represents the JWT claims for refresh tokens.
type RefreshClaims struct {
	EmployeeID string    `json:"employee_id"`
	TenantID   string    `json:"tenant_id"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	mu     sync.RWMutex
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	if config.Secret == "" {
		panic("jwt: secret is required")
	}

	if config.RefreshSecret == "" {
		config.RefreshSecret = config.Secret
	}

	if config.Issuer == "" {
		config.Issuer = "taskloop"
	}

	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 15 * time.Minute
	}

	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if config.TokenIDGenerator == nil {
		config.TokenIDGenerator = func() string {
			return uuid.New().String()
		}
	}

	return &JWTService{config: config}
}

// ============================================================================
// Token Generation
// ============================================================================

// TokenPair contains an access token and refresh token.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// GenerateTokenPair generates both access and refresh tokens for an employee.
func (s *JWTService) GenerateTokenPair(employee *models.Employee) (*TokenPair, error) {
	accessToken, accessExp, err := s.GenerateAccessToken(employee)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, refreshExp, err := s.GenerateRefreshToken(employee.ID, employee.TenantID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
		TokenType:             "Bearer",
	}, nil
}

// UpdateSecret updates the signing secrets for key rotation.
// Thread-safe: uses internal mutex to prevent races with token generation/validation.
func (s *JWTService) UpdateSecret(secret string) {
	s.mu.Lock()
	s.config.Secret = secret
	s.config.RefreshSecret = secret
	s.mu.Unlock()
}

// GenerateAccessToken generates an access token for an employee.
func (s *JWTService) GenerateAccessToken(employee *models.Employee) (string, time.Time, error) {
	s.mu.RLock()
	secret := s.config.Secret
	ttl := s.config.AccessTokenTTL
	issuer := s.config.Issuer
	tokenIDGen := s.config.TokenIDGenerator
	s.mu.RUnlock()

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		EmployeeID: employee.ID.String(),
		TenantID:   employee.TenantID.String(),
		Username:   employee.Username,
		Email:      employee.Email,
		Roles:      employee.Roles,
		Type:       TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenIDGen(),
			Issuer:    issuer,
			Subject:   employee.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// GenerateRefreshToken generates a refresh token for an employee.
func (s *JWTService) GenerateRefreshToken(employeeID, tenantID uuid.UUID) (string, time.Time, error) {
	s.mu.RLock()
	refreshSecret := s.config.RefreshSecret
	ttl := s.config.RefreshTokenTTL
	issuer := s.config.Issuer
	tokenIDGen := s.config.TokenIDGenerator
	s.mu.RUnlock()

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := &RefreshClaims{
		EmployeeID: employeeID.String(),
		TenantID:   tenantID.String(),
		Type:       TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenIDGen(),
			Issuer:    issuer,
			Subject:   employeeID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(refreshSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// ============================================================================
// Token Validation
// ============================================================================

// ValidateAccessToken validates an access token and returns the claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	s.mu.RLock()
	secret := s.config.Secret
	s.mu.RUnlock()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, s.mapJWTError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateRefreshToken validates a refresh token and returns the claims.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	s.mu.RLock()
	refreshSecret := s.config.RefreshSecret
	s.mu.RUnlock()

	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(refreshSecret), nil
	})

	if err != nil {
		return nil, s.mapJWTError(err)
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.Type != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseUnverified parses a token without verifying the signature.
// Useful for extracting claims from expired tokens.
func (s *JWTService) ParseUnverified(tokenString string) (*Claims, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// mapJWTError maps jwt-go errors to our custom errors.
func (s *JWTService) mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	default:
		return ErrInvalidToken
	}
}

// ============================================================================
// Token Utilities
// ============================================================================

// GetTokenID extracts the JTI (token ID) from a token string without full validation.
func (s *JWTService) GetTokenID(tokenString string) (string, error) {
	claims, err := s.ParseUnverified(tokenString)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

// GetExpirationTime extracts the expiration time from a token without full validation.
func (s *JWTService) GetExpirationTime(tokenString string) (time.Time, error) {
	claims, err := s.ParseUnverified(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidClaims
	}
	return claims.ExpiresAt.Time, nil
}

// GetAccessTokenTTL returns the access token TTL.
func (s *JWTService) GetAccessTokenTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.AccessTokenTTL
}

// GetRefreshTokenTTL returns the refresh token TTL.
func (s *JWTService) GetRefreshTokenTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.RefreshTokenTTL
}
