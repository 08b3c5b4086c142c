// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package app

import (
	"context"
	"fmt"

	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/employee"
)

// openDB builds a standalone database handle for one-shot commands that do
// not need the full application.
func openDB(ctx context.Context, cfg *Config) (*postgres.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	return postgres.New(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
}

// MigrateUp applies all pending migrations.
func MigrateUp(ctx context.Context, cfg *Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate(ctx)
}

// MigrateDown rolls back a single migration version.
func MigrateDown(ctx context.Context, cfg *Config, version string) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.MigrateDown(ctx, version)
}

// MigrationStatus returns the applied migration versions.
func MigrationStatus(ctx context.Context, cfg *Config) ([]postgres.MigrationStatusRow, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return db.MigrationStatus(ctx)
}

// ResetPassword sets a new password for an employee, looked up by tenant
// subdomain and username. Used by the admin CLI for account recovery.
func ResetPassword(ctx context.Context, cfg *Config, subdomain, username, newPassword string) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tenantRepo := postgres.NewTenantRepository(db)
	employeeRepo := postgres.NewEmployeeRepository(db)

	t, err := tenantRepo.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return fmt.Errorf("tenant %q: %w", subdomain, err)
	}

	emp, err := employeeRepo.GetByUsername(ctx, t.ID, username)
	if err != nil {
		return fmt.Errorf("employee %q: %w", username, err)
	}

	svc := employee.NewService(employeeRepo, logger.Nop())
	return svc.ResetPassword(ctx, emp.ID, newPassword)
}
