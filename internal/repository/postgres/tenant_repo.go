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

// TenantRepository handles tenant persistence, including calendar settings.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a tenant repository.
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `id, name, subdomain, admin_email, logo_path, office_opening,
	office_closing, weekends, whatsapp, point_settings, badge_library, created_at, updated_at`

// Create inserts a tenant.
func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if len(t.Weekends) == 0 {
		t.Weekends = []int{0}
	}

	whatsapp, pointSettings, badges, err := marshalTenantSettings(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, name, subdomain, admin_email, logo_path, office_opening,
			office_closing, weekends, whatsapp, point_settings, badge_library, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.Exec(ctx, query,
		t.ID, t.Name, t.Subdomain, t.AdminEmail, t.LogoPath, t.OfficeOpening,
		t.OfficeClosing, t.Weekends, whatsapp, pointSettings, badges, t.CreatedAt, t.UpdatedAt,
	)
	if IsDuplicateKeyError(err) {
		return errors.AlreadyExists("tenant")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert tenant")
	}
	return nil
}

// GetByID loads a tenant and its holidays.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.getOne(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)
}

// GetBySubdomain loads a tenant by its subdomain.
func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return r.getOne(ctx, "SELECT "+tenantColumns+" FROM tenants WHERE subdomain = $1", subdomain)
}

func (r *TenantRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Tenant, error) {
	var (
		t             models.Tenant
		whatsapp      []byte
		pointSettings []byte
		badges        []byte
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&t.ID, &t.Name, &t.Subdomain, &t.AdminEmail, &t.LogoPath, &t.OfficeOpening,
		&t.OfficeClosing, &t.Weekends, &whatsapp, &pointSettings, &badges, &t.CreatedAt, &t.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, errors.NotFound("tenant")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query tenant")
	}

	if err := unmarshalTenantSettings(&t, whatsapp, pointSettings, badges); err != nil {
		return nil, err
	}

	holidays, err := r.listHolidays(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Holidays = holidays
	return &t, nil
}

// List returns all tenants without holiday expansion.
func (r *TenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := r.db.Query(ctx, "SELECT "+tenantColumns+" FROM tenants ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query tenants")
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		var (
			t             models.Tenant
			whatsapp      []byte
			pointSettings []byte
			badges        []byte
		)
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Subdomain, &t.AdminEmail, &t.LogoPath, &t.OfficeOpening,
			&t.OfficeClosing, &t.Weekends, &whatsapp, &pointSettings, &badges, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan tenant")
		}
		if err := unmarshalTenantSettings(&t, whatsapp, pointSettings, badges); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// Update persists tenant settings.
func (r *TenantRepository) Update(ctx context.Context, t *models.Tenant) error {
	t.UpdatedAt = time.Now().UTC()

	whatsapp, pointSettings, badges, err := marshalTenantSettings(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tenants
		SET name = $2, subdomain = $3, admin_email = $4, logo_path = $5,
			office_opening = $6, office_closing = $7, weekends = $8,
			whatsapp = $9, point_settings = $10, badge_library = $11, updated_at = $12
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		t.ID, t.Name, t.Subdomain, t.AdminEmail, t.LogoPath,
		t.OfficeOpening, t.OfficeClosing, t.Weekends,
		whatsapp, pointSettings, badges, t.UpdatedAt,
	)
	if IsDuplicateKeyError(err) {
		return errors.AlreadyExists("tenant")
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update tenant")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("tenant")
	}
	return nil
}

// Delete removes a tenant. Dependent rows cascade via schema constraints.
func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete tenant")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("tenant")
	}
	return nil
}

// ============================================================================
// Holidays
// ============================================================================

// ReplaceHolidays swaps a tenant's holiday list atomically.
func (r *TenantRepository) ReplaceHolidays(ctx context.Context, tenantID uuid.UUID, holidays []models.Holiday) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM tenant_holidays WHERE tenant_id = $1", tenantID); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to clear holidays")
	}

	for _, h := range holidays {
		id := h.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO tenant_holidays (id, tenant_id, name, date) VALUES ($1, $2, $3, $4)",
			id, tenantID, h.Name, h.Date,
		); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to insert holiday")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to commit holidays")
	}
	return nil
}

func (r *TenantRepository) listHolidays(ctx context.Context, tenantID uuid.UUID) ([]models.Holiday, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, tenant_id, name, date FROM tenant_holidays WHERE tenant_id = $1 ORDER BY date",
		tenantID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to query holidays")
	}
	defer rows.Close()

	var out []models.Holiday
	for rows.Next() {
		var h models.Holiday
		if err := rows.Scan(&h.ID, &h.TenantID, &h.Name, &h.Date); err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan holiday")
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "row iteration error")
	}
	return out, nil
}

// ============================================================================
// JSONB helpers
// ============================================================================

func marshalTenantSettings(t *models.Tenant) (whatsapp, pointSettings, badges []byte, err error) {
	if whatsapp, err = json.Marshal(t.WhatsApp); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal whatsapp config")
	}
	if pointSettings, err = json.Marshal(t.PointSettings); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal point settings")
	}
	if badges, err = json.Marshal(t.BadgeLibrary); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.CodeInternal, "failed to marshal badge library")
	}
	return whatsapp, pointSettings, badges, nil
}

func unmarshalTenantSettings(t *models.Tenant, whatsapp, pointSettings, badges []byte) error {
	if len(whatsapp) > 0 {
		if err := json.Unmarshal(whatsapp, &t.WhatsApp); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to unmarshal whatsapp config")
		}
	}
	if len(pointSettings) > 0 {
		if err := json.Unmarshal(pointSettings, &t.PointSettings); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to unmarshal point settings")
		}
	}
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &t.BadgeLibrary); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to unmarshal badge library")
		}
	}
	return nil
}
