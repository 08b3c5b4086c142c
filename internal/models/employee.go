// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/scheduling"
)

// Role is an employee capability within a tenant.
type Role string

const (
	RoleAssigner    Role = "assigner"
	RoleDoer        Role = "doer"
	RoleCoordinator Role = "coordinator"
	RoleViewer      Role = "viewer"
	RoleAdmin       Role = "admin"
)

// ValidRoles contains all assignable roles.
var ValidRoles = map[Role]bool{
	RoleAssigner:    true,
	RoleDoer:        true,
	RoleCoordinator: true,
	RoleViewer:      true,
	RoleAdmin:       true,
}

// Employee is a tenant staff member.
type Employee struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Department   string    `json:"department,omitempty" db:"department"`
	WhatsApp     string    `json:"whatsapp_number,omitempty" db:"whatsapp_number"`

	Roles []Role `json:"roles" db:"-"`
	Leave Leave  `json:"leave" db:"-"`

	// Explicit visibility mappings for non-admin assigners/coordinators.
	ManagedDoers     []uuid.UUID `json:"managed_doers,omitempty" db:"-"`
	ManagedAssigners []uuid.UUID `json:"managed_assigners,omitempty" db:"-"`

	TotalPoints  int           `json:"total_points" db:"total_points"`
	EarnedBadges []EarnedBadge `json:"earned_badges,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Leave is an employee's leave window with optional buddy coverage.
type Leave struct {
	OnLeave   bool       `json:"on_leave"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	BuddyID   *uuid.UUID `json:"buddy_id,omitempty"`
}

// CoversDay reports whether the leave window is active on the given day.
func (l Leave) CoversDay(day time.Time) bool {
	if !l.OnLeave || l.StartDate == nil || l.EndDate == nil {
		return false
	}
	d := scheduling.Day(day)
	return !d.Before(scheduling.Day(*l.StartDate)) && !d.After(scheduling.Day(*l.EndDate))
}

// EarnedBadge records a badge unlocked by an employee.
type EarnedBadge struct {
	BadgeID    uuid.UUID `json:"badge_id" db:"badge_id"`
	Name       string    `json:"name" db:"name"`
	Icon       string    `json:"icon,omitempty" db:"icon"`
	Color      string    `json:"color,omitempty" db:"color"`
	UnlockedAt time.Time `json:"unlocked_at" db:"unlocked_at"`
}

// HasRole reports whether the employee carries the given role.
func (e *Employee) HasRole(role Role) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the employee is a tenant admin.
func (e *Employee) IsAdmin() bool {
	return e.HasRole(RoleAdmin)
}
