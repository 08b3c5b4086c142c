// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package app

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/services/employee"
	"github.com/lrbcloud/taskloop/internal/services/tenant"
)

// seedFile is the YAML layout accepted by Seed. A minimal file names one
// tenant and its admin; extra employees are optional.
type seedFile struct {
	Tenant struct {
		Name       string `yaml:"name"`
		Subdomain  string `yaml:"subdomain"`
		AdminEmail string `yaml:"admin_email"`
		Weekends   []int  `yaml:"weekends"`
	} `yaml:"tenant"`

	Admin struct {
		Name     string `yaml:"name"`
		Username string `yaml:"username"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`

	Employees []seedEmployee `yaml:"employees"`
}

type seedEmployee struct {
	Name       string   `yaml:"name"`
	Username   string   `yaml:"username"`
	Email      string   `yaml:"email"`
	Password   string   `yaml:"password"`
	Department string   `yaml:"department"`
	Roles      []string `yaml:"roles"`
}

// Seed applies the configured seed file. Seeding is idempotent: if the
// tenant's subdomain already exists, the file is skipped entirely.
func (a *Application) Seed(ctx context.Context) error {
	path := a.Config.Seed.File
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	if seed.Tenant.Subdomain == "" {
		return fmt.Errorf("seed file: tenant.subdomain is required")
	}
	if seed.Admin.Username == "" || seed.Admin.Password == "" {
		return fmt.Errorf("seed file: admin.username and admin.password are required")
	}

	if _, err := a.TenantRepo.GetBySubdomain(ctx, seed.Tenant.Subdomain); err == nil {
		a.Logger.Info("seed skipped, tenant exists", "subdomain", seed.Tenant.Subdomain)
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}

	t, err := a.TenantService.Create(ctx, tenant.CreateInput{
		Name:       seed.Tenant.Name,
		Subdomain:  seed.Tenant.Subdomain,
		AdminEmail: seed.Tenant.AdminEmail,
		Weekends:   seed.Tenant.Weekends,
	})
	if err != nil {
		return fmt.Errorf("seed: failed to create tenant: %w", err)
	}

	adminEmail := seed.Admin.Email
	if adminEmail == "" {
		adminEmail = seed.Tenant.AdminEmail
	}
	if _, err := a.EmployeeService.Create(ctx, employee.CreateInput{
		TenantID: t.ID,
		Name:     seed.Admin.Name,
		Username: seed.Admin.Username,
		Email:    adminEmail,
		Password: seed.Admin.Password,
		Roles:    []models.Role{models.RoleAdmin},
	}); err != nil {
		return fmt.Errorf("seed: failed to create admin: %w", err)
	}

	for _, e := range seed.Employees {
		roles, err := parseRoles(e.Roles)
		if err != nil {
			return fmt.Errorf("seed: employee %q: %w", e.Username, err)
		}
		if _, err := a.EmployeeService.Create(ctx, employee.CreateInput{
			TenantID:   t.ID,
			Name:       e.Name,
			Username:   e.Username,
			Email:      e.Email,
			Password:   e.Password,
			Department: e.Department,
			Roles:      roles,
		}); err != nil {
			return fmt.Errorf("seed: failed to create employee %q: %w", e.Username, err)
		}
	}

	a.Logger.Info("seed applied",
		"tenant", t.Subdomain,
		"employees", len(seed.Employees)+1,
	)
	return nil
}

func parseRoles(names []string) ([]models.Role, error) {
	roles := make([]models.Role, 0, len(names))
	for _, name := range names {
		role := models.Role(name)
		if !models.ValidRoles[role] {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
