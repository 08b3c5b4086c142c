// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/errors"
)

// EmployeeRepository handles employee persistence.
type EmployeeRepository struct {
	db *DB
}

// NewEmployeeRepository creates an employee repository.
func NewEmployeeRepository(db *DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `id, tenant_id, name, username, email, password_hash, department,
	whatsapp_number, roles, leave, managed_doers, managed_assigners, total_points,
	earned_badges, created_at, updated_at`

// Create inserts an employee.
func (r *EmployeeRepository) Create(ctx context.Context, e *models.Employee) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	leave, badges, err := marshalEmployeeSettings(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO employees (id, tenant_id, name, username, email, password_hash, department,
			whatsapp_number, roles, leave, managed_doers, managed_assigners, total_points,
			earned_badges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.Exec(ctx, query,
		e.ID, e.TenantID, e.Name, e.Username, e.Email, e.PasswordHash, e.Department,
		e.WhatsApp, rolesToStrings(e.Roles), leave, e.ManagedDoers, e.ManagedAssigners,
		e.TotalPoints, badges, e.CreatedAt, e.UpdatedAt,
	)
	if IsDuplicateKeyError(err) {
		return errors.AlreadyExists("employee")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert employee")
	}
	return nil
}

// GetByID loads an employee.
func (r *EmployeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	return r.getOne(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id)
}

// GetByUsername loads an employee by tenant-scoped username. Login flows use
// this before password verification.
func (r *EmployeeRepository) GetByUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Employee, error) {
	return r.getOne(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE tenant_id = $1 AND username = $2",
		tenantID, username)
}

func (r *EmployeeRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Employee, error) {
	row := r.db.QueryRow(ctx, query, args...)
	e, err := scanEmployee(row)
	if IsNoRows(err) {
		return nil, errors.NotFound("employee")
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByTenant returns all employees of a tenant, ordered by name.
func (r *EmployeeRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	return r.list(ctx, "SELECT "+employeeColumns+" FROM employees WHERE tenant_id = $1 ORDER BY name", tenantID)
}

// ListByIDs returns the employees with the given ids.
func (r *EmployeeRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ANY($1) ORDER BY name", ids)
}

// ListOnLeaveWithBuddy returns employees whose leave window is active and
// names a buddy. The buddy-substitution pass in the checklist service uses
// this to reroute visible occurrences.
func (r *EmployeeRepository) ListOnLeaveWithBuddy(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	query := "SELECT " + employeeColumns + ` FROM employees
		WHERE tenant_id = $1
		AND (leave->>'on_leave')::boolean = true
		AND leave->>'buddy_id' IS NOT NULL`
	return r.list(ctx, query, tenantID)
}

// ListLeaveExpired returns employees still flagged on leave whose end date
// has passed the given day.
func (r *EmployeeRepository) ListLeaveExpired(ctx context.Context, day time.Time) ([]*models.Employee, error) {
	query := "SELECT " + employeeColumns + ` FROM employees
		WHERE (leave->>'on_leave')::boolean = true
		AND (leave->>'end_date')::timestamptz < $1`
	return r.list(ctx, query, day)
}

func (r *EmployeeRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Employee, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query employees")
	}
	defer rows.Close()

	var out []*models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// Update persists employee profile and settings. The password hash is only
// written by UpdatePassword.
func (r *EmployeeRepository) Update(ctx context.Context, e *models.Employee) error {
	e.UpdatedAt = time.Now().UTC()

	leave, badges, err := marshalEmployeeSettings(e)
	if err != nil {
		return err
	}

	query := `
		UPDATE employees
		SET name = $2, username = $3, email = $4, department = $5, whatsapp_number = $6,
			roles = $7, leave = $8, managed_doers = $9, managed_assigners = $10,
			earned_badges = $11, updated_at = $12
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		e.ID, e.Name, e.Username, e.Email, e.Department, e.WhatsApp,
		rolesToStrings(e.Roles), leave, e.ManagedDoers, e.ManagedAssigners,
		badges, e.UpdatedAt,
	)
	if IsDuplicateKeyError(err) {
		return errors.AlreadyExists("employee")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update employee")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

// UpdatePassword writes a new password hash.
func (r *EmployeeRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE employees SET password_hash = $2, updated_at = $3 WHERE id = $1",
		id, hash, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update password")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

// UpdateLeave writes only the leave window.
func (r *EmployeeRepository) UpdateLeave(ctx context.Context, id uuid.UUID, leave models.Leave) error {
	payload, err := json.Marshal(leave)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal leave")
	}
	tag, err := r.db.Exec(ctx,
		"UPDATE employees SET leave = $2, updated_at = $3 WHERE id = $1",
		id, payload, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update leave")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

// AddPoints adjusts the running total atomically and returns the new value.
// The delta may be negative.
func (r *EmployeeRepository) AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		"UPDATE employees SET total_points = total_points + $2, updated_at = $3 WHERE id = $1 RETURNING total_points",
		id, delta, time.Now().UTC()).Scan(&total)
	if IsNoRows(err) {
		return 0, errors.NotFound("employee")
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "failed to add points")
	}
	return total, nil
}

// AppendBadge records a newly unlocked badge.
func (r *EmployeeRepository) AppendBadge(ctx context.Context, id uuid.UUID, badge models.EarnedBadge) error {
	payload, err := json.Marshal(badge)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal badge")
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE employees
		SET earned_badges = COALESCE(earned_badges, '[]'::jsonb) || $2::jsonb, updated_at = $3
		WHERE id = $1`,
		id, payload, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to append badge")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

// Delete removes an employee.
func (r *EmployeeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM employees WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete employee")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("employee")
	}
	return nil
}

// ============================================================================
// Scan helpers
// ============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var (
		e     models.Employee
		roles []string
		leave []byte
		badges []byte
	)
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Name, &e.Username, &e.Email, &e.PasswordHash, &e.Department,
		&e.WhatsApp, &roles, &leave, &e.ManagedDoers, &e.ManagedAssigners, &e.TotalPoints,
		&badges, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan employee")
	}

	e.Roles = stringsToRoles(roles)
	if len(leave) > 0 {
		if err := json.Unmarshal(leave, &e.Leave); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to unmarshal leave")
		}
	}
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &e.EarnedBadges); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to unmarshal earned badges")
		}
	}
	return &e, nil
}

func marshalEmployeeSettings(e *models.Employee) (leave, badges []byte, err error) {
	if leave, err = json.Marshal(e.Leave); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal leave")
	}
	if badges, err = json.Marshal(e.EarnedBadges); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal earned badges")
	}
	return leave, badges, nil
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func stringsToRoles(values []string) []models.Role {
	out := make([]models.Role, 0, len(values))
	for _, v := range values {
		out = append(out, models.Role(v))
	}
	return out
}
