// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/errors"
)

// DelegationRepository handles one-off delegated tasks. Attachments and the
// audit trail live in side tables.
type DelegationRepository struct {
	db *DB
}

// NewDelegationRepository creates a delegation repository.
func NewDelegationRepository(db *DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

const delegationColumns = `id, tenant_id, title, description, assigner_id, doer_id,
	coordinator_id, helper_doers, coworkers, priority, status, deadline, revised_deadline,
	remarks, created_at, updated_at`

// DelegationFilter narrows List results. Zero values are ignored.
type DelegationFilter struct {
	TenantID   uuid.UUID
	AssignerID uuid.UUID
	DoerID     uuid.UUID
	Status     models.DelegationStatus
	Priority   models.Priority
	DueBefore  time.Time
	Limit      int
	Offset     int
}

// Create inserts a delegation task with its opening history item.
func (r *DelegationRepository) Create(ctx context.Context, task *models.DelegationTask, opening models.DelegationHistoryItem) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO delegation_tasks (id, tenant_id, title, description, assigner_id, doer_id,
			coordinator_id, helper_doers, coworkers, priority, status, deadline, revised_deadline,
			remarks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := tx.Exec(ctx, query,
		task.ID, task.TenantID, task.Title, task.Description, task.AssignerID, task.DoerID,
		task.CoordinatorID, task.HelperDoers, task.Coworkers, task.Priority, task.Status,
		task.Deadline, task.RevisedDeadline, task.Remarks, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert delegation task")
	}

	opening.TaskID = task.ID
	if err := insertDelegationHistory(ctx, tx, &opening); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit delegation task")
	}
	task.History = append(task.History, opening)
	return nil
}

// GetByID loads a delegation task with files and history.
func (r *DelegationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DelegationTask, error) {
	row := r.db.QueryRow(ctx, "SELECT "+delegationColumns+" FROM delegation_tasks WHERE id = $1", id)
	task, err := scanDelegation(row)
	if IsNoRows(err) {
		return nil, errors.NotFound("task")
	}
	if err != nil {
		return nil, err
	}

	if task.Files, err = r.listFiles(ctx, id); err != nil {
		return nil, err
	}
	if task.History, err = r.listHistory(ctx, id); err != nil {
		return nil, err
	}
	return task, nil
}

// List returns delegation tasks matching the filter, newest first.
func (r *DelegationRepository) List(ctx context.Context, filter DelegationFilter) ([]*models.DelegationTask, error) {
	query := "SELECT " + delegationColumns + " FROM delegation_tasks WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.TenantID != uuid.Nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argNum)
		args = append(args, filter.TenantID)
		argNum++
	}
	if filter.AssignerID != uuid.Nil {
		query += fmt.Sprintf(" AND assigner_id = $%d", argNum)
		args = append(args, filter.AssignerID)
		argNum++
	}
	if filter.DoerID != uuid.Nil {
		query += fmt.Sprintf(" AND (doer_id = $%d OR $%d = ANY(helper_doers))", argNum, argNum)
		args = append(args, filter.DoerID)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(" AND priority = $%d", argNum)
		args = append(args, filter.Priority)
		argNum++
	}
	if !filter.DueBefore.IsZero() {
		query += fmt.Sprintf(" AND COALESCE(revised_deadline, deadline) < $%d", argNum)
		args = append(args, filter.DueBefore)
		argNum++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query delegation tasks")
	}
	defer rows.Close()

	var out []*models.DelegationTask
	for rows.Next() {
		task, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// ListByDeadlineRange returns a tenant's delegation tasks whose effective
// deadline falls in [from, to), with history attached. Reviews consume this
// to tally expected work against what was recorded.
func (r *DelegationRepository) ListByDeadlineRange(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.DelegationTask, error) {
	query := "SELECT " + delegationColumns + ` FROM delegation_tasks
		WHERE tenant_id = $1
		AND COALESCE(revised_deadline, deadline) >= $2
		AND COALESCE(revised_deadline, deadline) < $3
		ORDER BY deadline`

	rows, err := r.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query delegation tasks by deadline")
	}
	defer rows.Close()

	var out []*models.DelegationTask
	for rows.Next() {
		task, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}

	for _, task := range out {
		if task.History, err = r.listHistory(ctx, task.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update persists mutable task fields.
func (r *DelegationRepository) Update(ctx context.Context, task *models.DelegationTask) error {
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE delegation_tasks
		SET title = $2, description = $3, doer_id = $4, coordinator_id = $5, helper_doers = $6,
			coworkers = $7, priority = $8, status = $9, deadline = $10, revised_deadline = $11,
			remarks = $12, updated_at = $13
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		task.ID, task.Title, task.Description, task.DoerID, task.CoordinatorID, task.HelperDoers,
		task.Coworkers, task.Priority, task.Status, task.Deadline, task.RevisedDeadline,
		task.Remarks, task.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update delegation task")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("task")
	}
	return nil
}

// UpdateStatus moves a task through the workflow with a guard on the current
// status, recording the transition in the same transaction.
func (r *DelegationRepository) UpdateStatus(ctx context.Context, taskID uuid.UUID, from, to models.DelegationStatus, item models.DelegationHistoryItem) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		"UPDATE delegation_tasks SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2",
		taskID, from, to, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update status")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM delegation_tasks WHERE id = $1)", taskID).Scan(&exists); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to check task")
		}
		if !exists {
			return errors.NotFound("task")
		}
		return errors.Conflict("task status changed by a concurrent update")
	}

	item.TaskID = taskID
	if err := insertDelegationHistory(ctx, tx, &item); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit status change")
	}
	return nil
}

// AppendHistory records a history item outside a status change.
func (r *DelegationRepository) AppendHistory(ctx context.Context, item models.DelegationHistoryItem) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertDelegationHistory(ctx, tx, &item); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit history item")
	}
	return nil
}

// AddFile attaches a stored file to a task.
func (r *DelegationRepository) AddFile(ctx context.Context, file *models.TaskFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		"INSERT INTO delegation_files (id, task_id, file_name, path, uploaded_at) VALUES ($1, $2, $3, $4, $5)",
		file.ID, file.TaskID, file.FileName, file.Path, file.UploadedAt)
	if IsForeignKeyError(err) {
		return errors.NotFound("task")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert file")
	}
	return nil
}

// Delete removes a task with its files and history.
func (r *DelegationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM delegation_tasks WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete task")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("task")
	}
	return nil
}

// ============================================================================
// Side tables
// ============================================================================

func insertDelegationHistory(ctx context.Context, tx executor, item *models.DelegationHistoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO delegation_history (id, task_id, action, timestamp, remarks, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.TaskID, item.Action, item.Timestamp, item.Remarks, item.PerformedBy)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert history item")
	}
	return nil
}

func (r *DelegationRepository) listFiles(ctx context.Context, taskID uuid.UUID) ([]models.TaskFile, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, task_id, file_name, path, uploaded_at FROM delegation_files WHERE task_id = $1 ORDER BY uploaded_at",
		taskID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query files")
	}
	defer rows.Close()

	var out []models.TaskFile
	for rows.Next() {
		var f models.TaskFile
		if err := rows.Scan(&f.ID, &f.TaskID, &f.FileName, &f.Path, &f.UploadedAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan file")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

func (r *DelegationRepository) listHistory(ctx context.Context, taskID uuid.UUID) ([]models.DelegationHistoryItem, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, task_id, action, timestamp, remarks, performed_by FROM delegation_history WHERE task_id = $1 ORDER BY timestamp",
		taskID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query history")
	}
	defer rows.Close()

	var out []models.DelegationHistoryItem
	for rows.Next() {
		var h models.DelegationHistoryItem
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Action, &h.Timestamp, &h.Remarks, &h.PerformedBy); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan history item")
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

func scanDelegation(row rowScanner) (*models.DelegationTask, error) {
	var t models.DelegationTask
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Title, &t.Description, &t.AssignerID, &t.DoerID,
		&t.CoordinatorID, &t.HelperDoers, &t.Coworkers, &t.Priority, &t.Status,
		&t.Deadline, &t.RevisedDeadline, &t.Remarks, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan delegation task")
	}
	return &t, nil
}
