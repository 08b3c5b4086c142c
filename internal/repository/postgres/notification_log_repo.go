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

// NotificationLogRepository records outbound notification attempts.
type NotificationLogRepository struct {
	db *DB
}

// NewNotificationLogRepository creates a notification log repository.
func NewNotificationLogRepository(db *DB) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// NotificationLogFilter narrows List results. Zero values are ignored.
type NotificationLogFilter struct {
	TenantID uuid.UUID
	Channel  string
	Success  *bool
	Since    time.Time
	Limit    int
}

// Record inserts a delivery attempt. Logging failures must not break the
// notification path, so callers typically log and ignore the error.
func (r *NotificationLogRepository) Record(ctx context.Context, d *models.NotificationDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_log (id, tenant_id, channel, recipient, subject, success, error, task_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TenantID, d.Channel, d.Recipient, d.Subject, d.Success, d.Error, d.TaskID, d.SentAt)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert notification log")
	}
	return nil
}

// List returns delivery attempts matching the filter, newest first.
func (r *NotificationLogRepository) List(ctx context.Context, filter NotificationLogFilter) ([]*models.NotificationDelivery, error) {
	query := "SELECT id, tenant_id, channel, recipient, subject, success, error, task_id, sent_at FROM notification_log WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.TenantID != uuid.Nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argNum)
		args = append(args, filter.TenantID)
		argNum++
	}
	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argNum)
		args = append(args, filter.Channel)
		argNum++
	}
	if filter.Success != nil {
		query += fmt.Sprintf(" AND success = $%d", argNum)
		args = append(args, *filter.Success)
		argNum++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND sent_at >= $%d", argNum)
		args = append(args, filter.Since)
		argNum++
	}

	query += " ORDER BY sent_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query notification log")
	}
	defer rows.Close()

	var out []*models.NotificationDelivery
	for rows.Next() {
		var d models.NotificationDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Channel, &d.Recipient, &d.Subject,
			&d.Success, &d.Error, &d.TaskID, &d.SentAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan notification log")
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// Prune deletes log rows older than the cutoff and returns the count.
func (r *NotificationLogRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM notification_log WHERE sent_at < $1", cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "failed to prune notification log")
	}
	return tag.RowsAffected(), nil
}
