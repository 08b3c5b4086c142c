// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/crypto"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
)

// EmployeeStore provides the employee lookups login needs, satisfied by
// postgres.EmployeeRepository.
type EmployeeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	GetByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Employee, error)
}

// TenantStore resolves tenants from subdomains, satisfied by
// postgres.TenantRepository.
type TenantStore interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// Service handles authentication.
type Service struct {
	employeeRepo EmployeeStore
	tenantRepo   TenantStore
	jwt          *JWTService
	blacklist    *redis.JWTBlacklist
	logger       *logger.Logger
}

// NewService creates an auth service. The blacklist is optional; without it
// logout only takes effect when the access token expires.
func NewService(
	employeeRepo EmployeeStore,
	tenantRepo TenantStore,
	jwtService *JWTService,
	blacklist *redis.JWTBlacklist,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		employeeRepo: employeeRepo,
		tenantRepo:   tenantRepo,
		jwt:          jwtService,
		blacklist:    blacklist,
		logger:       log.Named("auth"),
	}
}

// LoginResult is a successful login.
type LoginResult struct {
	Tokens   *TokenPair       `json:"tokens"`
	Employee *models.Employee `json:"employee"`
}

// Login authenticates an employee against their tenant's subdomain. Failed
// lookups and wrong passwords return the same error so usernames cannot be
// probed.
func (s *Service) Login(ctx context.Context, subdomain, username, password string) (*LoginResult, error) {
	tenant, err := s.tenantRepo.GetBySubdomain(ctx, strings.ToLower(subdomain))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, err
	}

	employee, err := s.employeeRepo.GetByUsername(ctx, tenant.ID, strings.ToLower(username))
	if err != nil {
		if apperrors.IsNotFound(err) {
			// Burn a hash comparison so the miss costs the same as a wrong
			// password.
			crypto.CheckPassword(password, "$2a$12$Cq7raqsjdDVp0eFsTCBDZe8RT28bMF5lBOBUaGJHqQYPRrfHLYlIq")
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, err
	}

	if !crypto.CheckPassword(password, employee.PasswordHash) {
		s.logger.Warn("failed login attempt",
			"tenant_id", tenant.ID, "username", username)
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	tokens, err := s.jwt.GenerateTokenPair(employee)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to issue tokens")
	}

	s.logger.Info("login", "tenant_id", tenant.ID, "employee_id", employee.ID)
	return &LoginResult{Tokens: tokens, Employee: employee}, nil
}

// Validate checks an access token and its revocation status, returning the
// claims.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err.Error())
	}

	if s.blacklist != nil {
		issuedAt := time.Time{}
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		err := s.blacklist.ValidateToken(ctx, redis.TokenValidator{
			JTI:      claims.ID,
			UserID:   claims.EmployeeID,
			IssuedAt: issuedAt,
		})
		if err != nil {
			return nil, apperrors.Unauthorized("token has been revoked")
		}
	}

	return claims, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err.Error())
	}

	employeeID, err := uuid.Parse(claims.EmployeeID)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid token subject")
	}

	if s.blacklist != nil {
		issuedAt := time.Time{}
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		err := s.blacklist.ValidateToken(ctx, redis.TokenValidator{
			JTI:      claims.ID,
			UserID:   claims.EmployeeID,
			IssuedAt: issuedAt,
		})
		if err != nil {
			return nil, apperrors.Unauthorized("token has been revoked")
		}
	}

	// Re-read the employee so role or tenant changes land in the new token.
	employee, err := s.employeeRepo.GetByID(ctx, employeeID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("account no longer exists")
		}
		return nil, err
	}

	tokens, err := s.jwt.GenerateTokenPair(employee)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to issue tokens")
	}
	return tokens, nil
}

// Logout revokes an access token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if s.blacklist == nil {
		return nil
	}

	jti, err := s.jwt.GetTokenID(accessToken)
	if err != nil {
		return apperrors.Unauthorized("invalid token")
	}
	expiresAt, err := s.jwt.GetExpirationTime(accessToken)
	if err != nil {
		return apperrors.Unauthorized("invalid token")
	}

	return s.blacklist.BlacklistToken(ctx, jti, expiresAt, "logout")
}

// RevokeAllFor blacklists every token an employee holds that was issued
// before now. Used after password resets.
func (s *Service) RevokeAllFor(ctx context.Context, employeeID uuid.UUID) error {
	if s.blacklist == nil {
		return nil
	}
	ttl := s.jwt.GetRefreshTokenTTL()
	return s.blacklist.BlacklistUserTokens(ctx, employeeID.String(), time.Now().UTC(), ttl)
}
