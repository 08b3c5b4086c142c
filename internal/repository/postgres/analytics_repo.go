// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lrbcloud/taskloop/internal/pkg/errors"
)

// AnalyticsRepository serves read-only reporting aggregates. It runs over a
// database/sql connection via sqlx because the report rows map cleanly onto
// tagged structs and none of the queries need pgx-specific types.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository creates an analytics repository over an sqlx handle.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// DoerChecklistStats aggregates checklist completions for one doer over a
// reporting window. Late counts completions recorded after the occurrence
// day they satisfy.
type DoerChecklistStats struct {
	DoerID    uuid.UUID `db:"doer_id" json:"doer_id"`
	DoerName  string    `db:"doer_name" json:"doer_name"`
	Completed int       `db:"completed" json:"completed"`
	OnTime    int       `db:"on_time" json:"on_time"`
	Late      int       `db:"late" json:"late"`
}

// DoerDelegationStats aggregates delegation outcomes for one doer over a
// reporting window.
type DoerDelegationStats struct {
	DoerID    uuid.UUID `db:"doer_id" json:"doer_id"`
	DoerName  string    `db:"doer_name" json:"doer_name"`
	Assigned  int       `db:"assigned" json:"assigned"`
	Completed int       `db:"completed" json:"completed"`
	Verified  int       `db:"verified" json:"verified"`
	Rejected  int       `db:"rejected" json:"rejected"`
	Overdue   int       `db:"overdue" json:"overdue"`
}

// LeaderboardEntry is one row of the tenant points leaderboard.
type LeaderboardEntry struct {
	EmployeeID  uuid.UUID `db:"employee_id" json:"employee_id"`
	Name        string    `db:"name" json:"name"`
	TotalPoints int       `db:"total_points" json:"total_points"`
}

// ChecklistStats returns per-doer checklist aggregates for the window
// [from, to). Completions are bucketed by the timestamp they were recorded.
func (r *AnalyticsRepository) ChecklistStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DoerChecklistStats, error) {
	query := `
		SELECT
			t.doer_id AS doer_id,
			e.name AS doer_name,
			COUNT(*) AS completed,
			COUNT(*) FILTER (
				WHERE h.instance_date IS NULL OR date_trunc('day', h.timestamp) <= date_trunc('day', h.instance_date)
			) AS on_time,
			COUNT(*) FILTER (
				WHERE h.instance_date IS NOT NULL AND date_trunc('day', h.timestamp) > date_trunc('day', h.instance_date)
			) AS late
		FROM checklist_history h
		JOIN checklist_tasks t ON t.id = h.task_id
		JOIN employees e ON e.id = t.doer_id
		WHERE t.tenant_id = $1
			AND h.action IN ('completed', 'administrative_completion')
			AND h.timestamp >= $2 AND h.timestamp < $3
		GROUP BY t.doer_id, e.name
		ORDER BY completed DESC, e.name
	`
	var out []DoerChecklistStats
	if err := r.db.SelectContext(ctx, &out, query, tenantID, from, to); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query checklist stats")
	}
	return out, nil
}

// DelegationStats returns per-doer delegation aggregates for tasks created in
// the window [from, to).
func (r *AnalyticsRepository) DelegationStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]DoerDelegationStats, error) {
	query := `
		SELECT
			d.doer_id AS doer_id,
			e.name AS doer_name,
			COUNT(*) AS assigned,
			COUNT(*) FILTER (WHERE d.status IN ('completed', 'verified')) AS completed,
			COUNT(*) FILTER (WHERE d.status = 'verified') AS verified,
			COUNT(*) FILTER (WHERE d.status = 'rejected') AS rejected,
			COUNT(*) FILTER (
				WHERE d.status NOT IN ('completed', 'verified', 'rejected')
				AND COALESCE(d.revised_deadline, d.deadline) < NOW()
			) AS overdue
		FROM delegation_tasks d
		JOIN employees e ON e.id = d.doer_id
		WHERE d.tenant_id = $1 AND d.created_at >= $2 AND d.created_at < $3
		GROUP BY d.doer_id, e.name
		ORDER BY assigned DESC, e.name
	`
	var out []DoerDelegationStats
	if err := r.db.SelectContext(ctx, &out, query, tenantID, from, to); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query delegation stats")
	}
	return out, nil
}

// Leaderboard returns the top scorers of a tenant.
func (r *AnalyticsRepository) Leaderboard(ctx context.Context, tenantID uuid.UUID, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id AS employee_id, name, total_points
		FROM employees
		WHERE tenant_id = $1
		ORDER BY total_points DESC, name
		LIMIT $2
	`
	var out []LeaderboardEntry
	if err := r.db.SelectContext(ctx, &out, query, tenantID, limit); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query leaderboard")
	}
	return out, nil
}

// BacklogCount returns how many active checklists of a tenant have their
// pointer strictly before the given day.
func (r *AnalyticsRepository) BacklogCount(ctx context.Context, tenantID uuid.UUID, day time.Time) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM checklist_tasks WHERE tenant_id = $1 AND status = 'active' AND next_due_date < $2"
	if err := r.db.GetContext(ctx, &count, query, tenantID, day); err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "failed to query backlog count")
	}
	return count, nil
}
