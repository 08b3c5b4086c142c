// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package app

import (
	"github.com/lrbcloud/taskloop/internal/api"
	"github.com/lrbcloud/taskloop/internal/api/handlers"
	"github.com/lrbcloud/taskloop/internal/api/middleware"
	"github.com/lrbcloud/taskloop/internal/scheduler"
	"github.com/lrbcloud/taskloop/internal/services/export"
)

func (a *Application) initServer() {
	cfg := a.Config.Server

	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = cfg.Host
	serverCfg.Port = cfg.Port
	serverCfg.HTTPSPort = cfg.HTTPSPort
	if cfg.ReadTimeout > 0 {
		serverCfg.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		serverCfg.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.IdleTimeout > 0 {
		serverCfg.IdleTimeout = cfg.IdleTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		serverCfg.ShutdownTimeout = cfg.ShutdownTimeout
	}
	if cfg.TLS.Enabled {
		serverCfg.TLSCert = cfg.TLS.CertFile
		serverCfg.TLSKey = cfg.TLS.KeyFile
	}

	serverCfg.Version = Version
	serverCfg.Commit = Commit
	serverCfg.BuildTime = BuildTime
	serverCfg.Logger = a.Logger

	routerCfg := api.DefaultRouterConfig(a.AuthService.Validate)
	if cfg.RequestTimeout > 0 {
		routerCfg.RequestTimeout = cfg.RequestTimeout
	}
	routerCfg.EnableDebugLogging = cfg.DebugLogging
	routerCfg.CORSConfig = middleware.DefaultCORSConfig()
	serverCfg.RouterConfig = routerCfg

	server := api.NewServer(serverCfg)

	h := server.Handlers()
	h.Auth = handlers.NewAuthHandler(a.AuthService, a.Logger)
	h.Tenant = handlers.NewTenantHandler(a.TenantService, a.NotificationService, a.Logger)
	h.Employee = handlers.NewEmployeeHandler(a.EmployeeService, a.Logger)
	h.Checklist = handlers.NewChecklistHandler(a.ChecklistService, a.Logger)
	h.Delegation = handlers.NewDelegationHandler(a.DelegationService, a.Logger)
	h.Ticket = handlers.NewTicketHandler(a.TicketService, a.Logger)
	h.Analytics = handlers.NewAnalyticsHandler(a.AnalyticsService, a.Logger)
	h.Export = handlers.NewExportHandler(a.ExportService, export.Compression(a.Config.Export.Compression), a.Logger)
	if a.NATS != nil {
		h.WebSocket = handlers.NewWebSocketHandler(a.NATS, a.Logger)
	}

	// Readiness components
	server.RegisterDatabaseHealth(a.DB.Ping)
	server.RegisterRedisHealth(a.Redis.Ping)
	if a.NATS != nil {
		server.RegisterNATSHealth(a.NATS.IsConnected)
	}
	if a.Config.Storage.Type == "local" {
		// 256 MB free keeps evidence uploads and exports from failing mid-write.
		server.RegisterStorageHealth(a.Config.Storage.Path, 256<<20)
	}

	server.Setup()
	a.Server = server
}

func (a *Application) initScheduler() {
	cfg := scheduler.DefaultConfig()
	sc := a.Config.Scheduler
	if sc.ReminderSchedule != "" {
		cfg.ReminderSchedule = sc.ReminderSchedule
	}
	if sc.LeaveSweepSchedule != "" {
		cfg.LeaveSweepSchedule = sc.LeaveSweepSchedule
	}
	if sc.LogPruneSchedule != "" {
		cfg.LogPruneSchedule = sc.LogPruneSchedule
	}
	if sc.LogRetention > 0 {
		cfg.LogRetention = sc.LogRetention
	}
	if sc.DeadlineLookahead > 0 {
		cfg.DeadlineLookahead = sc.DeadlineLookahead
	}
	if sc.JobTimeout > 0 {
		cfg.JobTimeout = sc.JobTimeout
	}

	a.Scheduler = scheduler.New(
		cfg,
		a.TenantRepo,
		a.EmployeeRepo,
		a.ChecklistService,
		a.DelegationRepo,
		a.EmployeeService,
		a.NotificationLogRepo,
		a.NotificationService,
		a.Logger,
	)
}
