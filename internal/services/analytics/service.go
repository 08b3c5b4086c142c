// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package analytics assembles per-doer performance reports and the tenant
// leaderboard from the reporting queries.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
)

// Report is the combined performance view for one tenant and period.
type Report struct {
	TenantID uuid.UUID `json:"tenant_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`

	Checklists  []postgres.DoerChecklistStats  `json:"checklists"`
	Delegations []postgres.DoerDelegationStats `json:"delegations"`
	Backlog     int                            `json:"backlog"`
}

// EmployeeStore lists the employees a review covers.
type EmployeeStore interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error)
}

// DelegationStore supplies delegation tasks falling due inside a review
// window, with their history attached.
type DelegationStore interface {
	ListByDeadlineRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.DelegationTask, error)
}

// ChecklistStore supplies a tenant's checklists with history attached.
type ChecklistStore interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.ChecklistTask, error)
}

// Service produces reports, reviews and leaderboards.
type Service struct {
	analyticsRepo  *postgres.AnalyticsRepository
	employeeRepo   EmployeeStore
	delegationRepo DelegationStore
	checklistRepo  ChecklistStore
	cache          *redis.CalendarCache
	logger         *logger.Logger

	now func() time.Time
}

// NewService creates an analytics service. The cache is optional and only
// shields the leaderboard, the most frequently polled query.
func NewService(analyticsRepo *postgres.AnalyticsRepository, employeeRepo EmployeeStore, delegationRepo DelegationStore, checklistRepo ChecklistStore, cache *redis.CalendarCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		analyticsRepo:  analyticsRepo,
		employeeRepo:   employeeRepo,
		delegationRepo: delegationRepo,
		checklistRepo:  checklistRepo,
		cache:          cache,
		logger:         log.Named("analytics"),
		now:            time.Now,
	}
}

// Report builds the performance report for a tenant over [from, to].
func (s *Service) Report(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*Report, error) {
	if to.Before(from) {
		return nil, apperrors.InvalidInput("report period end precedes start")
	}

	checklists, err := s.analyticsRepo.ChecklistStats(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	delegations, err := s.analyticsRepo.DelegationStats(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	backlog, err := s.analyticsRepo.BacklogCount(ctx, tenantID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	return &Report{
		TenantID:    tenantID,
		From:        from,
		To:          to,
		Checklists:  checklists,
		Delegations: delegations,
		Backlog:     backlog,
	}, nil
}

// Leaderboard returns the tenant's top point earners, cached briefly since
// dashboards poll it.
func (s *Service) Leaderboard(ctx context.Context, tenantID uuid.UUID, limit int) ([]postgres.LeaderboardEntry, error) {
	if s.cache == nil {
		return s.analyticsRepo.Leaderboard(ctx, tenantID, limit)
	}

	var entries []postgres.LeaderboardEntry
	err := s.cache.GetOrSetLeaderboard(ctx, tenantID.String(), &entries, func() (interface{}, error) {
		return s.analyticsRepo.Leaderboard(ctx, tenantID, limit)
	})
	if err != nil {
		// Serve from the database when the cache is down.
		s.logger.Warn("leaderboard cache unavailable", "tenant_id", tenantID, "error", err)
		return s.analyticsRepo.Leaderboard(ctx, tenantID, limit)
	}
	return entries, nil
}
