// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package employee manages tenant staff: accounts, roles, leave windows and
// buddy coverage.
package employee

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/crypto"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
)

// EmployeeStore is the persistence surface the service needs, satisfied by
// postgres.EmployeeRepository.
type EmployeeStore interface {
	Create(ctx context.Context, e *models.Employee) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	GetByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Employee, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error)
	ListLeaveExpired(ctx context.Context, day time.Time) ([]*models.Employee, error)
	Update(ctx context.Context, e *models.Employee) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateLeave(ctx context.Context, id uuid.UUID, leave models.Leave) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service handles employee management.
type Service struct {
	employeeRepo EmployeeStore
	logger       *logger.Logger

	minPasswordLength int
}

// NewService creates an employee service.
func NewService(employeeRepo EmployeeStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		employeeRepo:      employeeRepo,
		logger:            log.Named("employee"),
		minPasswordLength: 8,
	}
}

// CreateInput is the payload for adding an employee.
type CreateInput struct {
	TenantID   uuid.UUID     `json:"tenant_id" validate:"required"`
	Name       string        `json:"name" validate:"required,min=1,max=255"`
	Username   string        `json:"username" validate:"required,username"`
	Email      string        `json:"email" validate:"omitempty,email"`
	Password   string        `json:"password" validate:"required"`
	Department string        `json:"department,omitempty"`
	WhatsApp   string        `json:"whatsapp_number,omitempty"`
	Roles      []models.Role `json:"roles"`

	ManagedDoers     []uuid.UUID `json:"managed_doers,omitempty"`
	ManagedAssigners []uuid.UUID `json:"managed_assigners,omitempty"`
}

// Create adds an employee with a bcrypt-hashed password. Usernames are
// lowercased and unique per tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Employee, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("employee name is required")
	}
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if len(input.Password) < s.minPasswordLength {
		return nil, apperrors.InvalidInput("password is too short")
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []models.Role{models.RoleDoer}
	}
	for _, r := range roles {
		if !models.ValidRoles[r] {
			return nil, apperrors.InvalidInput("unknown role " + string(r))
		}
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to hash password")
	}

	now := time.Now().UTC()
	employee := &models.Employee{
		ID:               uuid.New(),
		TenantID:         input.TenantID,
		Name:             input.Name,
		Username:         username,
		Email:            input.Email,
		PasswordHash:     hash,
		Department:       input.Department,
		WhatsApp:         input.WhatsApp,
		Roles:            roles,
		ManagedDoers:     input.ManagedDoers,
		ManagedAssigners: input.ManagedAssigners,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.employeeRepo.Create(ctx, employee); err != nil {
		return nil, err
	}

	s.logger.Info("employee created",
		"employee_id", employee.ID,
		"tenant_id", employee.TenantID,
		"username", username)

	return employee, nil
}

// Get returns an employee by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return s.employeeRepo.GetByID(ctx, id)
}

// List returns all employees of a tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	return s.employeeRepo.ListByTenant(ctx, tenantID)
}

// UpdateInput carries the mutable employee fields.
type UpdateInput struct {
	Name             *string        `json:"name,omitempty"`
	Email            *string        `json:"email,omitempty"`
	Department       *string        `json:"department,omitempty"`
	WhatsApp         *string        `json:"whatsapp_number,omitempty"`
	Roles            *[]models.Role `json:"roles,omitempty"`
	ManagedDoers     *[]uuid.UUID   `json:"managed_doers,omitempty"`
	ManagedAssigners *[]uuid.UUID   `json:"managed_assigners,omitempty"`
}

// Update edits an employee's profile and role assignments.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Employee, error) {
	employee, err := s.employeeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		employee.Name = *input.Name
	}
	if input.Email != nil {
		employee.Email = *input.Email
	}
	if input.Department != nil {
		employee.Department = *input.Department
	}
	if input.WhatsApp != nil {
		employee.WhatsApp = *input.WhatsApp
	}
	if input.Roles != nil {
		for _, r := range *input.Roles {
			if !models.ValidRoles[r] {
				return nil, apperrors.InvalidInput("unknown role " + string(r))
			}
		}
		employee.Roles = *input.Roles
	}
	if input.ManagedDoers != nil {
		employee.ManagedDoers = *input.ManagedDoers
	}
	if input.ManagedAssigners != nil {
		employee.ManagedAssigners = *input.ManagedAssigners
	}

	employee.UpdatedAt = time.Now().UTC()
	if err := s.employeeRepo.Update(ctx, employee); err != nil {
		return nil, err
	}
	return employee, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	employee, err := s.employeeRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.CheckPassword(current, employee.PasswordHash) {
		return apperrors.Unauthorized("current password is incorrect")
	}
	return s.setPassword(ctx, id, next)
}

// ResetPassword stores a new hash without checking the old password. For
// admin-initiated resets only.
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, next string) error {
	if _, err := s.employeeRepo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.setPassword(ctx, id, next)
}

func (s *Service) setPassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < s.minPasswordLength {
		return apperrors.InvalidInput("password is too short")
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to hash password")
	}
	return s.employeeRepo.UpdatePassword(ctx, id, hash)
}

// SetLeave records a leave window with optional buddy coverage.
func (s *Service) SetLeave(ctx context.Context, id uuid.UUID, leave models.Leave) error {
	if leave.OnLeave {
		if leave.StartDate == nil || leave.EndDate == nil {
			return apperrors.InvalidInput("leave start and end dates are required")
		}
		if leave.EndDate.Before(*leave.StartDate) {
			return apperrors.InvalidInput("leave end date precedes start date")
		}
		if leave.BuddyID != nil {
			if *leave.BuddyID == id {
				return apperrors.InvalidInput("an employee cannot be their own buddy")
			}
			if _, err := s.employeeRepo.GetByID(ctx, *leave.BuddyID); err != nil {
				return err
			}
		}
	}
	return s.employeeRepo.UpdateLeave(ctx, id, leave)
}

// ClearExpiredLeaves resets the leave flag for every employee whose window
// ended before the given day. Returns how many were cleared.
func (s *Service) ClearExpiredLeaves(ctx context.Context, day time.Time) (int, error) {
	expired, err := s.employeeRepo.ListLeaveExpired(ctx, day)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, e := range expired {
		if err := s.employeeRepo.UpdateLeave(ctx, e.ID, models.Leave{}); err != nil {
			s.logger.Warn("failed to clear expired leave",
				"employee_id", e.ID, "error", err)
			continue
		}
		cleared++
	}

	if cleared > 0 {
		s.logger.Info("expired leaves cleared", "count", cleared)
	}
	return cleared, nil
}

// Delete removes an employee.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.employeeRepo.Delete(ctx, id)
}
