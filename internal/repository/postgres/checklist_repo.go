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

// ChecklistRepository handles recurring checklist persistence. History rows
// live in a side table and are append-only.
type ChecklistRepository struct {
	db *DB
}

// NewChecklistRepository creates a checklist repository.
func NewChecklistRepository(db *DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

const checklistColumns = `id, tenant_id, name, description, doer_id, coordinator_id, rule,
	start_date, next_due_date, last_completed_at, status, created_at, updated_at`

// Create inserts a checklist together with its opening history entry in one
// transaction.
func (r *ChecklistRepository) Create(ctx context.Context, task *models.ChecklistTask, opening models.ChecklistHistoryEntry) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	rule, err := json.Marshal(task.Rule)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal rule")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		INSERT INTO checklist_tasks (id, tenant_id, name, description, doer_id, coordinator_id,
			rule, start_date, next_due_date, last_completed_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if _, err := tx.Exec(ctx, query,
		task.ID, task.TenantID, task.Name, task.Description, task.DoerID, task.CoordinatorID,
		rule, task.StartDate, task.NextDueDate, task.LastCompletedAt, task.Status,
		task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert checklist")
	}

	opening.TaskID = task.ID
	if err := insertHistory(ctx, tx, &opening); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit checklist")
	}
	task.History = append(task.History, opening)
	return nil
}

// GetByID loads a checklist with its full history, oldest first.
func (r *ChecklistRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistTask, error) {
	row := r.db.QueryRow(ctx, "SELECT "+checklistColumns+" FROM checklist_tasks WHERE id = $1", id)
	task, err := scanChecklist(row)
	if IsNoRows(err) {
		return nil, errors.NotFound("checklist")
	}
	if err != nil {
		return nil, err
	}

	history, err := r.listHistory(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	task.History = history
	return task, nil
}

// ListByTenant returns a tenant's checklists with history attached. The
// reconciler needs completion records, so listing always hydrates history.
func (r *ChecklistRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.ChecklistTask, error) {
	return r.list(ctx, "SELECT "+checklistColumns+" FROM checklist_tasks WHERE tenant_id = $1 ORDER BY created_at", tenantID)
}

// ListByDoer returns a doer's checklists with history attached.
func (r *ChecklistRepository) ListByDoer(ctx context.Context, tenantID, doerID uuid.UUID) ([]*models.ChecklistTask, error) {
	return r.list(ctx,
		"SELECT "+checklistColumns+" FROM checklist_tasks WHERE tenant_id = $1 AND doer_id = $2 ORDER BY created_at",
		tenantID, doerID)
}

// ListActive returns every active checklist across tenants. The reminder job
// walks this set daily.
func (r *ChecklistRepository) ListActive(ctx context.Context) ([]*models.ChecklistTask, error) {
	return r.list(ctx, "SELECT "+checklistColumns+" FROM checklist_tasks WHERE status = $1 ORDER BY tenant_id, created_at",
		models.ChecklistActive)
}

func (r *ChecklistRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ChecklistTask, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query checklists")
	}
	defer rows.Close()

	var out []*models.ChecklistTask
	for rows.Next() {
		task, err := scanChecklist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}

	for _, task := range out {
		history, err := r.listHistory(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		task.History = history
	}
	return out, nil
}

// Update persists mutable checklist fields, including a re-resolved pointer
// after a rule or start date change.
func (r *ChecklistRepository) Update(ctx context.Context, task *models.ChecklistTask) error {
	task.UpdatedAt = time.Now().UTC()

	rule, err := json.Marshal(task.Rule)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to marshal rule")
	}

	query := `
		UPDATE checklist_tasks
		SET name = $2, description = $3, doer_id = $4, coordinator_id = $5, rule = $6,
			start_date = $7, next_due_date = $8, status = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		task.ID, task.Name, task.Description, task.DoerID, task.CoordinatorID, rule,
		task.StartDate, task.NextDueDate, task.Status, task.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update checklist")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("checklist")
	}
	return nil
}

// AdvanceNextDue moves the due-date pointer with a compare-and-swap and
// records the completion entry in the same transaction. Two completions
// racing on the same occurrence leave exactly one winner; the loser sees a
// conflict because the pointer no longer matches.
func (r *ChecklistRepository) AdvanceNextDue(ctx context.Context, taskID uuid.UUID, from, to time.Time, entry models.ChecklistHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE checklist_tasks
		SET next_due_date = $3, last_completed_at = $4, updated_at = $4
		WHERE id = $1 AND next_due_date = $2`,
		taskID, from, to, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to advance due date")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM checklist_tasks WHERE id = $1)", taskID).Scan(&exists); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to check checklist")
		}
		if !exists {
			return errors.NotFound("checklist")
		}
		return errors.Conflict("due date moved by a concurrent completion")
	}

	entry.TaskID = taskID
	if err := insertHistory(ctx, tx, &entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit completion")
	}
	return nil
}

// AppendHistory records a history entry without touching the pointer. Backlog
// completions and lifecycle actions go through here.
func (r *ChecklistRepository) AppendHistory(ctx context.Context, entry models.ChecklistHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertHistory(ctx, tx, &entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit history entry")
	}
	return nil
}

// Delete removes a checklist and its history.
func (r *ChecklistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM checklist_tasks WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete checklist")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("checklist")
	}
	return nil
}

// ============================================================================
// History
// ============================================================================

func insertHistory(ctx context.Context, tx executor, entry *models.ChecklistHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO checklist_history (id, task_id, action, timestamp, instance_date, remarks, performed_by, attachment_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TaskID, entry.Action, entry.Timestamp, entry.InstanceDate,
		entry.Remarks, entry.PerformedBy, entry.AttachmentPath,
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert history entry")
	}
	return nil
}

func (r *ChecklistRepository) listHistory(ctx context.Context, taskID uuid.UUID) ([]models.ChecklistHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, task_id, action, timestamp, instance_date, remarks, performed_by, attachment_path
		FROM checklist_history WHERE task_id = $1 ORDER BY timestamp`,
		taskID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query history")
	}
	defer rows.Close()

	var out []models.ChecklistHistoryEntry
	for rows.Next() {
		var h models.ChecklistHistoryEntry
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Action, &h.Timestamp, &h.InstanceDate,
			&h.Remarks, &h.PerformedBy, &h.AttachmentPath); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan history entry")
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

func scanChecklist(row rowScanner) (*models.ChecklistTask, error) {
	var (
		t    models.ChecklistTask
		rule []byte
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Description, &t.DoerID, &t.CoordinatorID, &rule,
		&t.StartDate, &t.NextDueDate, &t.LastCompletedAt, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan checklist")
	}
	if len(rule) > 0 {
		if err := json.Unmarshal(rule, &t.Rule); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to unmarshal rule")
		}
	}
	return &t, nil
}
