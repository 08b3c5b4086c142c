// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/services/notification/channels"
)

type fakeChannel struct {
	name    string
	sent    []string
	sendErr error
}

func (f *fakeChannel) Name() string       { return f.name }
func (f *fakeChannel) IsConfigured() bool { return true }

func (f *fakeChannel) Send(_ context.Context, recipient string, _ channels.Message) error {
	f.sent = append(f.sent, recipient)
	return f.sendErr
}

type mockLogStore struct {
	entries   []*models.NotificationDelivery
	recordErr error
}

func (m *mockLogStore) Record(_ context.Context, d *models.NotificationDelivery) error {
	m.entries = append(m.entries, d)
	return m.recordErr
}

func TestDeliver_RecordsSuccess(t *testing.T) {
	logs := &mockLogStore{}
	svc := NewService(nil, logs, logger.Nop())
	ch := &fakeChannel{name: "email"}
	tenantID := uuid.New()

	msg := channels.Message{Subject: "Due today", Type: channels.TypeChecklistDue}
	if err := svc.deliver(context.Background(), tenantID, ch, "dana@example.com", msg, nil); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(ch.sent) != 1 || ch.sent[0] != "dana@example.com" {
		t.Fatalf("sent = %v", ch.sent)
	}
	if len(logs.entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs.entries))
	}
	entry := logs.entries[0]
	if !entry.Success || entry.Channel != "email" || entry.TenantID != tenantID {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestDeliver_RecordsFailure(t *testing.T) {
	logs := &mockLogStore{}
	svc := NewService(nil, logs, logger.Nop())
	ch := &fakeChannel{name: "whatsapp", sendErr: errors.New("gateway down")}

	err := svc.deliver(context.Background(), uuid.New(), ch, "+15551234567", channels.Message{}, nil)
	if err == nil {
		t.Fatal("expected delivery error")
	}

	if len(logs.entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs.entries))
	}
	entry := logs.entries[0]
	if entry.Success || entry.Error != "gateway down" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestDeliver_LogFailureDoesNotBlock(t *testing.T) {
	logs := &mockLogStore{recordErr: errors.New("db down")}
	svc := NewService(nil, logs, logger.Nop())
	ch := &fakeChannel{name: "email"}

	if err := svc.deliver(context.Background(), uuid.New(), ch, "dana@example.com", channels.Message{}, nil); err != nil {
		t.Fatalf("deliver should succeed despite log failure, got %v", err)
	}
}

func TestNotifyEmployee_NoChannelsConfigured(t *testing.T) {
	svc := NewService(nil, &mockLogStore{}, logger.Nop())

	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}
	emp := &models.Employee{ID: uuid.New(), Email: "dana@example.com"}

	if err := svc.NotifyEmployee(context.Background(), tenant, emp, channels.Message{Subject: "x"}, nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestNotifyEmployee_InactiveWhatsAppSkipped(t *testing.T) {
	logs := &mockLogStore{}
	svc := NewService(nil, logs, logger.Nop())

	tenant := &models.Tenant{
		ID:       uuid.New(),
		WhatsApp: models.WhatsAppConfig{Active: false, APIKey: "k", ProductID: "p", InstanceID: "i"},
	}
	emp := &models.Employee{ID: uuid.New(), WhatsApp: "+15551234567"}

	if err := svc.NotifyEmployee(context.Background(), tenant, emp, channels.Message{}, nil); err != nil {
		t.Fatalf("NotifyEmployee: %v", err)
	}
	if len(logs.entries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(logs.entries))
	}
}

func TestNotifyEmployee_MisconfiguredWhatsAppReported(t *testing.T) {
	svc := NewService(nil, &mockLogStore{}, logger.Nop())

	tenant := &models.Tenant{
		ID:       uuid.New(),
		WhatsApp: models.WhatsAppConfig{Active: true, APIKey: "k"}, // missing product/instance
	}
	emp := &models.Employee{ID: uuid.New(), WhatsApp: "+15551234567"}

	if err := svc.NotifyEmployee(context.Background(), tenant, emp, channels.Message{}, nil); err == nil {
		t.Fatal("expected error for incomplete gateway credentials")
	}
}

func TestSendTest_UnknownChannel(t *testing.T) {
	svc := NewService(nil, nil, logger.Nop())
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}

	if err := svc.SendTest(context.Background(), tenant, "pigeon", "x"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestSendTest_EmailNotConfigured(t *testing.T) {
	svc := NewService(nil, nil, logger.Nop())
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}

	if err := svc.SendTest(context.Background(), tenant, "email", "dana@example.com"); err == nil {
		t.Fatal("expected error when email channel is absent")
	}
}
