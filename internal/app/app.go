// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package app wires configuration, storage, services and the HTTP server
// into a running taskloop instance.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/lrbcloud/taskloop/internal/api"
	"github.com/lrbcloud/taskloop/internal/nats"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
	"github.com/lrbcloud/taskloop/internal/scheduler"
	"github.com/lrbcloud/taskloop/internal/services/analytics"
	"github.com/lrbcloud/taskloop/internal/services/auth"
	"github.com/lrbcloud/taskloop/internal/services/checklist"
	"github.com/lrbcloud/taskloop/internal/services/delegation"
	"github.com/lrbcloud/taskloop/internal/services/employee"
	"github.com/lrbcloud/taskloop/internal/services/export"
	"github.com/lrbcloud/taskloop/internal/services/notification"
	"github.com/lrbcloud/taskloop/internal/services/tenant"
	"github.com/lrbcloud/taskloop/internal/services/ticket"
	"github.com/lrbcloud/taskloop/internal/storage"
)

// Version information, injected at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = ""
)

// Application holds all initialized components.
type Application struct {
	Config *Config
	Logger *logger.Logger

	// Infrastructure
	DB      *postgres.DB
	SQLX    *sqlx.DB
	Redis   *redis.Client
	NATS    *nats.Client
	Files   storage.Backend

	// Repositories
	TenantRepo          *postgres.TenantRepository
	EmployeeRepo        *postgres.EmployeeRepository
	ChecklistRepo       *postgres.ChecklistRepository
	DelegationRepo      *postgres.DelegationRepository
	TicketRepo          *postgres.TicketRepository
	AnalyticsRepo       *postgres.AnalyticsRepository
	NotificationLogRepo *postgres.NotificationLogRepository

	// Services
	AuthService         *auth.Service
	TenantService       *tenant.Service
	EmployeeService     *employee.Service
	ChecklistService    *checklist.Service
	DelegationService   *delegation.Service
	TicketService       *ticket.Service
	AnalyticsService    *analytics.Service
	NotificationService *notification.Service
	ExportService       *export.Service

	// Server and background jobs
	Server    *api.Server
	Scheduler *scheduler.Scheduler
}

// New builds the application from configuration. Components are initialized
// in dependency order; a failure tears down whatever was already started.
func New(ctx context.Context, cfg *Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Application{Config: cfg}

	if err := a.initLogger(); err != nil {
		return nil, err
	}

	a.Logger.Info("starting taskloop",
		"version", Version,
		"commit", Commit,
	)

	if err := a.initDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initNATS(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.initRepositories()
	if err := a.initServices(); err != nil {
		a.Close()
		return nil, err
	}

	a.initScheduler()
	a.initServer()

	return a, nil
}

// Run starts the server and the scheduler and blocks until the context is
// canceled or a termination signal arrives.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.Config.Scheduler.Enabled && a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	errCh := a.Server.StartAsync()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return a.Shutdown()
}

// Shutdown stops components in reverse dependency order.
func (a *Application) Shutdown() error {
	a.Logger.Info("shutting down")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Server != nil {
		if err := a.Server.Shutdown(nil); err != nil {
			a.Logger.Error("server shutdown error", "error", err)
		}
	}

	a.Close()
	a.Logger.Info("shutdown complete")
	return nil
}

// Close releases connections without the graceful server drain. Safe to call
// on a partially initialized application.
func (a *Application) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("redis close error", "error", err)
		}
	}
	if a.SQLX != nil {
		if err := a.SQLX.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("sqlx close error", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
