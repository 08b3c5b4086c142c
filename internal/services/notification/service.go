// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package notification dispatches outbound messages to employees over the
// configured delivery channels and records every attempt.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/notification/channels"
)

// LogStore records delivery attempts, satisfied by
// postgres.NotificationLogRepository.
type LogStore interface {
	Record(ctx context.Context, d *models.NotificationDelivery) error
}

// Service fans a message out to the channels reachable for an employee.
// Email is deployment-wide; WhatsApp is built per tenant from the tenant's
// gateway credentials.
type Service struct {
	email  *channels.EmailChannel
	logs   LogStore
	logger *logger.Logger

	now func() time.Time
}

// NewService creates the dispatcher. Both the email channel and the log
// store are optional; a nil channel is simply skipped.
func NewService(email *channels.EmailChannel, logs LogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		email:  email,
		logs:   logs,
		logger: log.Named("notification"),
		now:    time.Now,
	}
}

// NotifyEmployee delivers a message to an employee over every reachable
// channel. Channels fail independently; the returned error joins the
// individual failures and is nil when at least the attempts themselves
// could be made and all succeeded.
func (s *Service) NotifyEmployee(ctx context.Context, tenant *models.Tenant, emp *models.Employee, msg channels.Message, taskID *uuid.UUID) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}

	var errs []error

	if s.email != nil && s.email.IsConfigured() && emp.Email != "" {
		if err := s.deliver(ctx, tenant.ID, s.email, emp.Email, msg, taskID); err != nil {
			errs = append(errs, err)
		}
	}

	if tenant.WhatsApp.Active && emp.WhatsApp != "" {
		wa, err := channels.NewWhatsAppChannel(tenant.WhatsApp)
		if err != nil {
			s.logger.Warn("whatsapp channel misconfigured",
				"tenant_id", tenant.ID,
				"error", err,
			)
			errs = append(errs, err)
		} else if err := s.deliver(ctx, tenant.ID, wa, emp.WhatsApp, msg, taskID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SendTest pushes a test message to a single recipient over one named
// channel so admins can verify gateway credentials.
func (s *Service) SendTest(ctx context.Context, tenant *models.Tenant, channel, recipient string) error {
	msg := channels.Message{
		Subject:   "Test notification",
		Body:      fmt.Sprintf("Test message from taskloop for %s.", tenant.Name),
		Type:      channels.TypeTestMessage,
		Timestamp: s.now().UTC(),
	}

	switch channel {
	case "email":
		if s.email == nil || !s.email.IsConfigured() {
			return fmt.Errorf("email channel is not configured")
		}
		return s.deliver(ctx, tenant.ID, s.email, recipient, msg, nil)
	case "whatsapp":
		if !tenant.WhatsApp.Active {
			return fmt.Errorf("whatsapp is not active for this tenant")
		}
		wa, err := channels.NewWhatsAppChannel(tenant.WhatsApp)
		if err != nil {
			return err
		}
		return s.deliver(ctx, tenant.ID, wa, recipient, msg, nil)
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

// deliver sends over one channel and records the attempt. Log-store
// failures are logged and swallowed so bookkeeping never blocks delivery.
func (s *Service) deliver(ctx context.Context, tenantID uuid.UUID, ch channels.Channel, recipient string, msg channels.Message, taskID *uuid.UUID) error {
	sendErr := ch.Send(ctx, recipient, msg)

	if s.logs != nil {
		entry := &models.NotificationDelivery{
			TenantID:  tenantID,
			Channel:   ch.Name(),
			Recipient: recipient,
			Subject:   msg.Subject,
			Success:   sendErr == nil,
			TaskID:    taskID,
			SentAt:    s.now().UTC(),
		}
		if sendErr != nil {
			entry.Error = sendErr.Error()
		}
		if err := s.logs.Record(ctx, entry); err != nil {
			s.logger.Warn("failed to record notification delivery",
				"channel", ch.Name(),
				"error", err,
			)
		}
	}

	if sendErr != nil {
		s.logger.Warn("notification delivery failed",
			"channel", ch.Name(),
			"recipient", recipient,
			"type", msg.Type,
			"error", sendErr,
		)
		return sendErr
	}

	s.logger.Debug("notification delivered",
		"channel", ch.Name(),
		"recipient", recipient,
		"type", msg.Type,
	)
	return nil
}
