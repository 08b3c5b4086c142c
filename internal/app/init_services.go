// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package app

import (
	"fmt"

	"github.com/lrbcloud/taskloop/internal/nats"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
	"github.com/lrbcloud/taskloop/internal/services/analytics"
	"github.com/lrbcloud/taskloop/internal/services/auth"
	"github.com/lrbcloud/taskloop/internal/services/checklist"
	"github.com/lrbcloud/taskloop/internal/services/delegation"
	"github.com/lrbcloud/taskloop/internal/services/employee"
	"github.com/lrbcloud/taskloop/internal/services/export"
	"github.com/lrbcloud/taskloop/internal/services/notification"
	"github.com/lrbcloud/taskloop/internal/services/notification/channels"
	"github.com/lrbcloud/taskloop/internal/services/tenant"
	"github.com/lrbcloud/taskloop/internal/services/ticket"
)

func (a *Application) initRepositories() {
	a.TenantRepo = postgres.NewTenantRepository(a.DB)
	a.EmployeeRepo = postgres.NewEmployeeRepository(a.DB)
	a.ChecklistRepo = postgres.NewChecklistRepository(a.DB)
	a.DelegationRepo = postgres.NewDelegationRepository(a.DB)
	a.TicketRepo = postgres.NewTicketRepository(a.DB)
	a.AnalyticsRepo = postgres.NewAnalyticsRepository(a.SQLX)
	a.NotificationLogRepo = postgres.NewNotificationLogRepository(a.DB)
}

func (a *Application) initServices() error {
	log := a.Logger

	// Caches and event publisher
	calendarCache := redis.NewCalendarCache(a.Redis)
	blacklist := redis.NewJWTBlacklist(a.Redis)

	var events *nats.EventPublisher
	if a.NATS != nil {
		events = nats.NewEventPublisher(a.NATS, log.Base())
	}

	// Authentication
	jwtCfg := auth.DefaultJWTConfig(a.Config.Security.JWTSecret)
	if a.Config.Security.JWTIssuer != "" {
		jwtCfg.Issuer = a.Config.Security.JWTIssuer
	}
	if a.Config.Security.AccessTokenTTL > 0 {
		jwtCfg.AccessTokenTTL = a.Config.Security.AccessTokenTTL
	}
	if a.Config.Security.RefreshTokenTTL > 0 {
		jwtCfg.RefreshTokenTTL = a.Config.Security.RefreshTokenTTL
	}
	jwtService := auth.NewJWTService(jwtCfg)
	a.AuthService = auth.NewService(a.EmployeeRepo, a.TenantRepo, jwtService, blacklist, log)

	// Notification channels. Email is deployment-wide; WhatsApp credentials
	// come from each tenant's settings at send time.
	var emailChannel *channels.EmailChannel
	if a.Config.Email.Enabled {
		ch, err := channels.NewEmailChannel(channels.EmailConfig{
			Host:        a.Config.Email.Host,
			Port:        a.Config.Email.Port,
			Username:    a.Config.Email.Username,
			Password:    a.Config.Email.Password,
			UseTLS:      a.Config.Email.UseTLS,
			UseSSL:      a.Config.Email.UseSSL,
			SkipVerify:  a.Config.Email.SkipVerify,
			FromAddress: a.Config.Email.FromAddress,
			FromName:    a.Config.Email.FromName,
			ReplyTo:     a.Config.Email.ReplyTo,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize email channel: %w", err)
		}
		emailChannel = ch
	}
	a.NotificationService = notification.NewService(emailChannel, a.NotificationLogRepo, log)

	// Domain services
	a.TenantService = tenant.NewService(a.TenantRepo, calendarCache, log)
	a.EmployeeService = employee.NewService(a.EmployeeRepo, log)
	a.ChecklistService = checklist.NewService(a.ChecklistRepo, a.EmployeeRepo, a.TenantRepo, calendarCache, a.Files, events, log)
	a.DelegationService = delegation.NewService(a.DelegationRepo, a.EmployeeRepo, a.TenantRepo, a.Files, events, log)
	a.TicketService = ticket.NewService(a.TicketRepo, log)
	a.AnalyticsService = analytics.NewService(a.AnalyticsRepo, a.EmployeeRepo, a.DelegationRepo, a.ChecklistRepo, calendarCache, log)
	a.ExportService = export.NewService(a.Files, log)

	return nil
}
