// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package models defines the persistent entities shared by repositories,
// services and handlers.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/scheduling"
)

// Tenant is one company on the platform. Calendar settings (weekends,
// holidays) feed the scheduling oracle; point settings and the badge
// library drive the scoring engine.
type Tenant struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Subdomain  string    `json:"subdomain" db:"subdomain"`
	AdminEmail string    `json:"admin_email" db:"admin_email"`
	LogoPath   string    `json:"logo_path,omitempty" db:"logo_path"`

	OfficeOpening string `json:"office_opening,omitempty" db:"office_opening"`
	OfficeClosing string `json:"office_closing,omitempty" db:"office_closing"`

	// Weekday indices, 0=Sunday..6=Saturday. Empty means Sunday only.
	Weekends []int     `json:"weekends" db:"-"`
	Holidays []Holiday `json:"holidays,omitempty" db:"-"`

	WhatsApp      WhatsAppConfig `json:"whatsapp" db:"-"`
	PointSettings PointSettings  `json:"point_settings" db:"-"`
	BadgeLibrary  []Badge        `json:"badge_library,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Holiday is a named non-working date.
type Holiday struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TenantID uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name     string    `json:"name" db:"name"`
	Date     time.Time `json:"date" db:"date"`
}

// WhatsAppConfig holds the tenant's messaging gateway credentials.
type WhatsAppConfig struct {
	Active     bool   `json:"active"`
	APIKey     string `json:"api_key,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
}

// PointsUnit selects the granularity for early/late point deltas.
type PointsUnit string

const (
	UnitHour PointsUnit = "hour"
	UnitDay  PointsUnit = "day"
)

// PointSettings configures the scoring engine for a tenant.
type PointSettings struct {
	Active   bool           `json:"active"`
	Brackets []PointBracket `json:"brackets,omitempty"`
}

// PointBracket scores tasks whose planned duration fits under
// MaxDurationDays. EarlyBonus and LatePenalty are points per unit.
type PointBracket struct {
	Label           string     `json:"label"`
	MaxDurationDays float64    `json:"max_duration_days"`
	Unit            PointsUnit `json:"unit"`
	EarlyBonus      int        `json:"early_bonus"`
	LatePenalty     int        `json:"late_penalty"`
}

// Badge is an unlockable achievement in the tenant's library.
type Badge struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PointThreshold int       `json:"point_threshold"`
	Icon           string    `json:"icon,omitempty"`
	Color          string    `json:"color,omitempty"`
}

// Calendar builds the scheduling oracle from the tenant's settings.
func (t *Tenant) Calendar() scheduling.Calendar {
	dates := make([]time.Time, 0, len(t.Holidays))
	for _, h := range t.Holidays {
		dates = append(dates, h.Date)
	}
	weekend := make([]time.Weekday, 0, len(t.Weekends))
	for _, w := range t.Weekends {
		if w >= 0 && w <= 6 {
			weekend = append(weekend, time.Weekday(w))
		}
	}
	return scheduling.NewCalendar(dates, weekend)
}
