// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package tenant manages companies and their calendar, messaging and
// scoring settings.
package tenant

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// TenantStore is the persistence surface the service needs, satisfied by
// postgres.TenantRepository.
type TenantStore interface {
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Update(ctx context.Context, t *models.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	ReplaceHolidays(ctx context.Context, tenantID uuid.UUID, holidays []models.Holiday) error
}

// Service handles tenant management.
type Service struct {
	tenantRepo TenantStore
	cache      *redis.CalendarCache
	logger     *logger.Logger
}

// NewService creates a tenant service. The cache is optional.
func NewService(tenantRepo TenantStore, cache *redis.CalendarCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		tenantRepo: tenantRepo,
		cache:      cache,
		logger:     log.Named("tenant"),
	}
}

// CreateInput is the payload for registering a tenant.
type CreateInput struct {
	Name       string `json:"name" validate:"required,min=1,max=255"`
	Subdomain  string `json:"subdomain" validate:"required"`
	AdminEmail string `json:"admin_email" validate:"required,email"`
	Weekends   []int  `json:"weekends,omitempty"`
}

// Create registers a new tenant. The subdomain is lowercased and must be a
// valid DNS label.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Tenant, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("tenant name is required")
	}

	subdomain := strings.ToLower(strings.TrimSpace(input.Subdomain))
	if !subdomainPattern.MatchString(subdomain) {
		return nil, apperrors.InvalidInput("subdomain must be a valid DNS label")
	}

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:         uuid.New(),
		Name:       input.Name,
		Subdomain:  subdomain,
		AdminEmail: input.AdminEmail,
		Weekends:   input.Weekends,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant created", "tenant_id", tenant.ID, "subdomain", subdomain)
	return tenant, nil
}

// Get returns a tenant with its holidays.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.tenantRepo.GetByID(ctx, id)
}

// GetBySubdomain resolves a tenant from its subdomain.
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return s.tenantRepo.GetBySubdomain(ctx, strings.ToLower(subdomain))
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]*models.Tenant, error) {
	return s.tenantRepo.List(ctx)
}

// UpdateInput carries the mutable tenant fields. Nil pointers leave the
// corresponding field unchanged.
type UpdateInput struct {
	Name          *string                `json:"name,omitempty"`
	AdminEmail    *string                `json:"admin_email,omitempty"`
	LogoPath      *string                `json:"logo_path,omitempty"`
	OfficeOpening *string                `json:"office_opening,omitempty"`
	OfficeClosing *string                `json:"office_closing,omitempty"`
	Weekends      *[]int                 `json:"weekends,omitempty"`
	WhatsApp      *models.WhatsAppConfig `json:"whatsapp,omitempty"`
	PointSettings *models.PointSettings  `json:"point_settings,omitempty"`
	BadgeLibrary  *[]models.Badge        `json:"badge_library,omitempty"`
}

// Update edits a tenant's settings. Weekend changes invalidate the cached
// calendar so schedules pick the change up immediately.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Tenant, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	calendarChanged := false
	if input.Name != nil {
		tenant.Name = *input.Name
	}
	if input.AdminEmail != nil {
		tenant.AdminEmail = *input.AdminEmail
	}
	if input.LogoPath != nil {
		tenant.LogoPath = *input.LogoPath
	}
	if input.OfficeOpening != nil {
		tenant.OfficeOpening = *input.OfficeOpening
	}
	if input.OfficeClosing != nil {
		tenant.OfficeClosing = *input.OfficeClosing
	}
	if input.Weekends != nil {
		for _, w := range *input.Weekends {
			if w < 0 || w > 6 {
				return nil, apperrors.InvalidInput("weekend days must be 0 (Sunday) through 6 (Saturday)")
			}
		}
		tenant.Weekends = *input.Weekends
		calendarChanged = true
	}
	if input.WhatsApp != nil {
		tenant.WhatsApp = *input.WhatsApp
	}
	if input.PointSettings != nil {
		if err := validatePointSettings(*input.PointSettings); err != nil {
			return nil, err
		}
		tenant.PointSettings = *input.PointSettings
	}
	if input.BadgeLibrary != nil {
		tenant.BadgeLibrary = *input.BadgeLibrary
	}

	tenant.UpdatedAt = time.Now().UTC()
	if err := s.tenantRepo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	if calendarChanged {
		s.invalidateCalendar(ctx, id)
	}

	return tenant, nil
}

// ReplaceHolidays swaps the tenant's holiday list atomically and invalidates
// the cached calendar.
func (s *Service) ReplaceHolidays(ctx context.Context, tenantID uuid.UUID, holidays []models.Holiday) error {
	for i := range holidays {
		if holidays[i].Date.IsZero() {
			return apperrors.InvalidInput("holiday date is required")
		}
		if holidays[i].ID == uuid.Nil {
			holidays[i].ID = uuid.New()
		}
		holidays[i].TenantID = tenantID
	}

	if err := s.tenantRepo.ReplaceHolidays(ctx, tenantID, holidays); err != nil {
		return err
	}

	s.invalidateCalendar(ctx, tenantID)
	return nil
}

// Delete removes a tenant and everything under it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tenantRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCalendar(ctx, id)
	return nil
}

func (s *Service) invalidateCalendar(ctx context.Context, tenantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTenant(ctx, tenantID.String()); err != nil {
		s.logger.Warn("failed to invalidate calendar cache",
			"tenant_id", tenantID, "error", err)
	}
}

func validatePointSettings(ps models.PointSettings) error {
	for _, b := range ps.Brackets {
		if b.MaxDurationDays <= 0 {
			return apperrors.InvalidInput("bracket duration must be positive")
		}
		if b.Unit != models.UnitHour && b.Unit != models.UnitDay {
			return apperrors.InvalidInput("bracket unit must be hour or day")
		}
		if b.EarlyBonus < 0 || b.LatePenalty < 0 {
			return apperrors.InvalidInput("bracket points must not be negative")
		}
	}
	return nil
}
