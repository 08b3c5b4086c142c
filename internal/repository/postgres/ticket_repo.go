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

// TicketRepository handles support ticket persistence.
type TicketRepository struct {
	db *DB
}

// NewTicketRepository creates a ticket repository.
func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// TicketFilter narrows List results. Zero values are ignored.
type TicketFilter struct {
	TenantID uuid.UUID
	RaisedBy uuid.UUID
	Status   models.TicketStatus
	Limit    int
	Offset   int
}

// Create inserts a ticket.
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = models.TicketOpen
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO tickets (id, tenant_id, raised_by, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.TenantID, t.RaisedBy, t.Subject, t.Body, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert ticket")
	}
	return nil
}

// GetByID loads a ticket.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var t models.Ticket
	err := r.db.QueryRow(ctx,
		"SELECT id, tenant_id, raised_by, subject, body, status, created_at, updated_at FROM tickets WHERE id = $1",
		id).Scan(&t.ID, &t.TenantID, &t.RaisedBy, &t.Subject, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if IsNoRows(err) {
		return nil, errors.NotFound("ticket")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query ticket")
	}
	return &t, nil
}

// List returns tickets matching the filter, newest first.
func (r *TicketRepository) List(ctx context.Context, filter TicketFilter) ([]*models.Ticket, error) {
	query := "SELECT id, tenant_id, raised_by, subject, body, status, created_at, updated_at FROM tickets WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.TenantID != uuid.Nil {
		query += fmt.Sprintf(" AND tenant_id = $%d", argNum)
		args = append(args, filter.TenantID)
		argNum++
	}
	if filter.RaisedBy != uuid.Nil {
		query += fmt.Sprintf(" AND raised_by = $%d", argNum)
		args = append(args, filter.RaisedBy)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
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
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query tickets")
	}
	defer rows.Close()

	var out []*models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.TenantID, &t.RaisedBy, &t.Subject, &t.Body, &t.Status,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan ticket")
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// UpdateStatus opens or closes a ticket.
func (r *TicketRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE tickets SET status = $2, updated_at = $3 WHERE id = $1",
		id, status, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update ticket")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("ticket")
	}
	return nil
}
