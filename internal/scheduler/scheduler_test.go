// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/notification/channels"
)

type mockTenants struct{ tenants []*models.Tenant }

func (m *mockTenants) List(_ context.Context) ([]*models.Tenant, error) { return m.tenants, nil }

type mockEmployees struct{ staff []*models.Employee }

func (m *mockEmployees) ListByTenant(_ context.Context, _ uuid.UUID) ([]*models.Employee, error) {
	return m.staff, nil
}

type mockInstances struct{ instances []models.ChecklistInstance }

func (m *mockInstances) ListInstances(_ context.Context, _ uuid.UUID, _ *uuid.UUID) ([]models.ChecklistInstance, error) {
	return m.instances, nil
}

type mockDelegations struct{ tasks []*models.DelegationTask }

func (m *mockDelegations) List(_ context.Context, filter postgres.DelegationFilter) ([]*models.DelegationTask, error) {
	var out []*models.DelegationTask
	for _, t := range m.tasks {
		if t.Status == filter.Status && t.Deadline.Before(filter.DueBefore) {
			out = append(out, t)
		}
	}
	return out, nil
}

type sentNotification struct {
	employeeID uuid.UUID
	msg        channels.Message
	taskID     *uuid.UUID
}

type mockNotifier struct{ sent []sentNotification }

func (m *mockNotifier) NotifyEmployee(_ context.Context, _ *models.Tenant, emp *models.Employee, msg channels.Message, taskID *uuid.UUID) error {
	m.sent = append(m.sent, sentNotification{employeeID: emp.ID, msg: msg, taskID: taskID})
	return nil
}

type mockSweeper struct{ cleared int }

func (m *mockSweeper) ClearExpiredLeaves(_ context.Context, _ time.Time) (int, error) {
	return m.cleared, nil
}

type mockPruner struct{ gotCutoff time.Time }

func (m *mockPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.gotCutoff = cutoff
	return 3, nil
}

var testNow = time.Date(2026, time.January, 8, 8, 0, 0, 0, time.UTC)

func newSchedulerFixture(t *testing.T, tenants *mockTenants, employees *mockEmployees, instances *mockInstances, delegations *mockDelegations, notifier *mockNotifier) *Scheduler {
	t.Helper()

	s := New(nil, tenants, employees, instances, delegations, &mockSweeper{}, &mockPruner{}, notifier, logger.Nop())
	s.now = func() time.Time { return testNow }
	return s
}

func TestRunReminders_GroupsPerDoer(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}
	dana := &models.Employee{ID: uuid.New(), Name: "Dana", Email: "dana@example.com"}
	blake := &models.Employee{ID: uuid.New(), Name: "Blake", Email: "blake@example.com"}

	instances := []models.ChecklistInstance{
		{TaskID: uuid.New(), DoerID: dana.ID, Name: "Daily log", InstanceDate: testNow},
		{TaskID: uuid.New(), DoerID: dana.ID, Name: "Weekly audit", InstanceDate: testNow.AddDate(0, 0, -2), Backlog: true},
		{TaskID: uuid.New(), DoerID: blake.ID, Name: "Stock count", InstanceDate: testNow},
	}

	notifier := &mockNotifier{}
	s := newSchedulerFixture(t,
		&mockTenants{tenants: []*models.Tenant{tenant}},
		&mockEmployees{staff: []*models.Employee{dana, blake}},
		&mockInstances{instances: instances},
		&mockDelegations{},
		notifier,
	)

	if err := s.runReminders(context.Background()); err != nil {
		t.Fatalf("runReminders: %v", err)
	}

	if len(notifier.sent) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(notifier.sent))
	}

	var danaMsg *channels.Message
	for i := range notifier.sent {
		if notifier.sent[i].employeeID == dana.ID {
			danaMsg = &notifier.sent[i].msg
		}
	}
	if danaMsg == nil {
		t.Fatal("no digest for dana")
	}
	if danaMsg.Type != channels.TypeChecklistBacklog {
		t.Errorf("type = %s, want backlog", danaMsg.Type)
	}
	if !strings.Contains(danaMsg.Body, "Weekly audit") || !strings.Contains(danaMsg.Body, "[backlog]") {
		t.Errorf("body = %q", danaMsg.Body)
	}
	// Backlog entries sort first.
	if strings.Index(danaMsg.Body, "Weekly audit") > strings.Index(danaMsg.Body, "Daily log") {
		t.Errorf("backlog not first in %q", danaMsg.Body)
	}
}

func TestRunReminders_DeadlineWarnings(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme"}
	dana := &models.Employee{ID: uuid.New(), Name: "Dana"}

	soon := &models.DelegationTask{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		Title:    "Quarterly report",
		DoerID:   dana.ID,
		Status:   models.DelegationAccepted,
		Deadline: testNow.Add(6 * time.Hour),
	}
	far := &models.DelegationTask{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		Title:    "Next month plan",
		DoerID:   dana.ID,
		Status:   models.DelegationPending,
		Deadline: testNow.Add(10 * 24 * time.Hour),
	}

	notifier := &mockNotifier{}
	s := newSchedulerFixture(t,
		&mockTenants{tenants: []*models.Tenant{tenant}},
		&mockEmployees{staff: []*models.Employee{dana}},
		&mockInstances{},
		&mockDelegations{tasks: []*models.DelegationTask{soon, far}},
		notifier,
	)

	if err := s.runReminders(context.Background()); err != nil {
		t.Fatalf("runReminders: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.msg.Type != channels.TypeDeadlineNearing {
		t.Errorf("type = %s", sent.msg.Type)
	}
	if sent.taskID == nil || *sent.taskID != soon.ID {
		t.Errorf("task id = %v, want %v", sent.taskID, soon.ID)
	}
	if !strings.Contains(sent.msg.Subject, "Quarterly report") {
		t.Errorf("subject = %q", sent.msg.Subject)
	}
}

func TestRunReminders_RevisedDeadlineUsed(t *testing.T) {
	tenant := &models.Tenant{ID: uuid.New()}
	dana := &models.Employee{ID: uuid.New(), Name: "Dana"}
	revised := testNow.Add(3 * time.Hour)

	task := &models.DelegationTask{
		ID:              uuid.New(),
		TenantID:        tenant.ID,
		Title:           "Revised task",
		DoerID:          dana.ID,
		Status:          models.DelegationAccepted,
		Deadline:        testNow.Add(-48 * time.Hour),
		RevisedDeadline: &revised,
	}

	notifier := &mockNotifier{}
	s := newSchedulerFixture(t,
		&mockTenants{tenants: []*models.Tenant{tenant}},
		&mockEmployees{staff: []*models.Employee{dana}},
		&mockInstances{},
		&mockDelegations{tasks: []*models.DelegationTask{task}},
		notifier,
	)

	if err := s.runReminders(context.Background()); err != nil {
		t.Fatalf("runReminders: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0].msg.Body, "is due") {
		t.Errorf("expected revised deadline in the future, body = %q", notifier.sent[0].msg.Body)
	}
}

func TestRunLogPrune_CutoffUsesRetention(t *testing.T) {
	pruner := &mockPruner{}
	s := New(nil, nil, nil, nil, nil, nil, pruner, nil, logger.Nop())
	s.now = func() time.Time { return testNow }

	if err := s.runLogPrune(context.Background()); err != nil {
		t.Fatalf("runLogPrune: %v", err)
	}

	want := testNow.Add(-90 * 24 * time.Hour)
	if !pruner.gotCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", pruner.gotCutoff, want)
	}
}

func TestStartStop(t *testing.T) {
	s := New(nil, &mockTenants{}, &mockEmployees{}, &mockInstances{}, &mockDelegations{}, &mockSweeper{}, &mockPruner{}, &mockNotifier{}, logger.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("expected running")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error on double start")
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("expected stopped")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReminderSchedule = "not a cron line"

	s := New(cfg, &mockTenants{}, &mockEmployees{}, &mockInstances{}, &mockDelegations{}, &mockSweeper{}, &mockPruner{}, &mockNotifier{}, logger.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
