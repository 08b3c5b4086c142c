// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package checklist

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/scheduling"
	"github.com/lrbcloud/taskloop/internal/storage"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockChecklistStore struct {
	tasks map[uuid.UUID]*models.ChecklistTask
}

func newMockChecklistStore() *mockChecklistStore {
	return &mockChecklistStore{tasks: make(map[uuid.UUID]*models.ChecklistTask)}
}

func (m *mockChecklistStore) Create(_ context.Context, task *models.ChecklistTask, opening models.ChecklistHistoryEntry) error {
	task.History = append(task.History, opening)
	m.tasks[task.ID] = task
	return nil
}

func (m *mockChecklistStore) GetByID(_ context.Context, id uuid.UUID) (*models.ChecklistTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("checklist task")
	}
	cp := *task
	cp.History = append([]models.ChecklistHistoryEntry(nil), task.History...)
	return &cp, nil
}

func (m *mockChecklistStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]*models.ChecklistTask, error) {
	var out []*models.ChecklistTask
	for _, t := range m.tasks {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockChecklistStore) ListByDoer(_ context.Context, tenantID, doerID uuid.UUID) ([]*models.ChecklistTask, error) {
	var out []*models.ChecklistTask
	for _, t := range m.tasks {
		if t.TenantID == tenantID && t.DoerID == doerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockChecklistStore) Update(_ context.Context, task *models.ChecklistTask) error {
	stored, ok := m.tasks[task.ID]
	if !ok {
		return apperrors.NotFound("checklist task")
	}
	history := stored.History
	cp := *task
	cp.History = history
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockChecklistStore) AdvanceNextDue(_ context.Context, taskID uuid.UUID, from, to time.Time, entry models.ChecklistHistoryEntry) error {
	task, ok := m.tasks[taskID]
	if !ok {
		return apperrors.NotFound("checklist task")
	}
	if !task.NextDueDate.Equal(from) {
		return apperrors.Conflict("due date moved by a concurrent completion")
	}
	task.NextDueDate = to
	task.History = append(task.History, entry)
	return nil
}

func (m *mockChecklistStore) AppendHistory(_ context.Context, entry models.ChecklistHistoryEntry) error {
	task, ok := m.tasks[entry.TaskID]
	if !ok {
		return apperrors.NotFound("checklist task")
	}
	task.History = append(task.History, entry)
	return nil
}

func (m *mockChecklistStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return apperrors.NotFound("checklist task")
	}
	delete(m.tasks, id)
	return nil
}

type mockEmployeeStore struct {
	employees map[uuid.UUID]*models.Employee
}

func newMockEmployeeStore() *mockEmployeeStore {
	return &mockEmployeeStore{employees: make(map[uuid.UUID]*models.Employee)}
}

func (m *mockEmployeeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, apperrors.NotFound("employee")
	}
	return e, nil
}

func (m *mockEmployeeStore) ListOnLeaveWithBuddy(_ context.Context, tenantID uuid.UUID) ([]*models.Employee, error) {
	var out []*models.Employee
	for _, e := range m.employees {
		if e.TenantID == tenantID && e.Leave.OnLeave && e.Leave.BuddyID != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockTenantStore struct {
	tenants map[uuid.UUID]*models.Tenant
}

func newMockTenantStore() *mockTenantStore {
	return &mockTenantStore{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (m *mockTenantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, apperrors.NotFound("tenant")
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// 2026-01-08 is a Thursday.
var testToday = time.Date(2026, 1, 8, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	checklist *mockChecklistStore
	employees *mockEmployeeStore
	tenants   *mockTenantStore
	files     storage.Backend
	tenantID  uuid.UUID
	doerID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	files, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	f := &fixture{
		checklist: newMockChecklistStore(),
		employees: newMockEmployeeStore(),
		tenants:   newMockTenantStore(),
		files:     files,
		tenantID:  uuid.New(),
		doerID:    uuid.New(),
	}

	// Sunday-only weekend, no holidays.
	f.tenants.tenants[f.tenantID] = &models.Tenant{
		ID:       f.tenantID,
		Name:     "Acme",
		Weekends: []int{0},
	}
	f.employees.employees[f.doerID] = &models.Employee{
		ID:       f.doerID,
		TenantID: f.tenantID,
		Name:     "Dana",
		Roles:    []models.Role{models.RoleDoer},
	}

	f.svc = NewService(f.checklist, f.employees, f.tenants, nil, f.files, nil, logger.Nop())
	f.svc.now = func() time.Time { return testToday }
	return f
}

func (f *fixture) createDaily(t *testing.T, start time.Time) *models.ChecklistTask {
	t.Helper()
	task, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:  f.tenantID,
		Name:      "daily report",
		DoerID:    f.doerID,
		Rule:      scheduling.RuleConfig{Kind: scheduling.Daily},
		StartDate: start,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreate_FirstDueSkipsWeekend(t *testing.T) {
	f := newFixture(t)

	// 2026-01-04 is a Sunday; the first occurrence lands on Monday.
	task := f.createDaily(t, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC))

	want := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if !task.NextDueDate.Equal(want) {
		t.Fatalf("first due = %v, want %v", task.NextDueDate, want)
	}
	if len(task.History) != 1 || task.History[0].Action != models.ActionCreated {
		t.Fatalf("expected one opening history entry, got %+v", task.History)
	}
}

func TestCreate_StartDateItselfEligible(t *testing.T) {
	f := newFixture(t)

	// 2026-01-05 is a working Monday, so it is the first occurrence.
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	task := f.createDaily(t, start)

	if !task.NextDueDate.Equal(start) {
		t.Fatalf("first due = %v, want %v", task.NextDueDate, start)
	}
}

func TestCreate_UnknownDoerRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:  f.tenantID,
		Name:      "daily report",
		DoerID:    uuid.New(),
		Rule:      scheduling.RuleConfig{Kind: scheduling.Daily},
		StartDate: testToday,
	})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found for unknown doer, got %v", err)
	}
}

func TestComplete_PointerDateAdvances(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	got, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: task.NextDueDate,
		PerformedBy:  f.doerID,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Friday 2026-01-09 follows Thursday for a daily rule.
	want := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	if !got.NextDueDate.Equal(want) {
		t.Fatalf("pointer = %v, want %v", got.NextDueDate, want)
	}

	stored := f.checklist.tasks[task.ID]
	last := stored.History[len(stored.History)-1]
	if last.Action != models.ActionCompleted {
		t.Fatalf("history action = %q, want completed", last.Action)
	}
	if last.InstanceDate == nil || !last.InstanceDate.Equal(time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("history instance date = %v", last.InstanceDate)
	}
}

func TestComplete_BacklogDateLeavesPointer(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	pointer := task.NextDueDate

	// Completing a day the pointer is not on records history only. The
	// pointer sits on Jan 5; Jan 6 is a future occurrence from its view.
	got, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		PerformedBy:  f.doerID,
		Remarks:      "done out of order",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !got.NextDueDate.Equal(pointer) {
		t.Fatalf("pointer moved to %v, want %v", got.NextDueDate, pointer)
	}

	stored := f.checklist.tasks[task.ID]
	if len(stored.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(stored.History))
	}
}

func TestComplete_StalePointerCAS(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	// Simulate a concurrent winner moving the pointer between this caller's
	// read and its conditional update.
	loser, err := f.checklist.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if _, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: task.NextDueDate,
		PerformedBy:  f.doerID,
	}); err != nil {
		t.Fatalf("winner Complete: %v", err)
	}

	err = f.checklist.AdvanceNextDue(context.Background(), loser.ID, loser.NextDueDate,
		loser.NextDueDate.AddDate(0, 0, 1), models.ChecklistHistoryEntry{TaskID: loser.ID})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict from stale pointer, got %v", err)
	}
}

func TestComplete_PausedRejected(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	if err := f.svc.Pause(context.Background(), task.ID, nil); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	_, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: task.NextDueDate,
		PerformedBy:  f.doerID,
	})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict completing a paused checklist, got %v", err)
	}
}

func TestComplete_Administrative(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	adminID := uuid.New()
	if _, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:         task.ID,
		InstanceDate:   task.NextDueDate,
		PerformedBy:    adminID,
		Administrative: true,
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stored := f.checklist.tasks[task.ID]
	last := stored.History[len(stored.History)-1]
	if last.Action != models.ActionAdminCompleted {
		t.Fatalf("history action = %q, want administrative_completion", last.Action)
	}
}

func TestComplete_EvidenceStoredAndReadable(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	content := "meter reading photo"
	if _, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: task.NextDueDate,
		PerformedBy:  f.doerID,
		Evidence: &EvidenceFile{
			FileName: "reading.jpg",
			Reader:   strings.NewReader(content),
			Size:     int64(len(content)),
		},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stored := f.checklist.tasks[task.ID]
	last := stored.History[len(stored.History)-1]
	if last.AttachmentPath == "" {
		t.Fatal("expected evidence path on completion history")
	}
	if !strings.HasSuffix(last.AttachmentPath, "_reading.jpg") {
		t.Fatalf("evidence path %q does not carry the file name", last.AttachmentPath)
	}

	reader, err := f.svc.OpenEvidence(context.Background(), last.AttachmentPath)
	if err != nil {
		t.Fatalf("OpenEvidence: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read evidence: %v", err)
	}
	if string(data) != content {
		t.Fatalf("evidence content = %q, want %q", data, content)
	}
}

func TestComplete_EvidenceWithoutBackendRejected(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	f.svc.files = nil
	_, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: task.NextDueDate,
		PerformedBy:  f.doerID,
		Evidence: &EvidenceFile{
			FileName: "reading.jpg",
			Reader:   strings.NewReader("x"),
			Size:     1,
		},
	})
	if err == nil {
		t.Fatal("expected error completing with evidence and no backend")
	}
}

func TestListInstances_BacklogAccumulates(t *testing.T) {
	f := newFixture(t)

	// Daily task anchored on Monday Jan 5; today is Thursday Jan 8. Four
	// working days are outstanding: Mon, Tue, Wed (backlog) and Thu.
	f.createDaily(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &f.doerID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 4 {
		t.Fatalf("expected 4 instances, got %d", len(instances))
	}

	for i, inst := range instances {
		if i > 0 && inst.InstanceDate.Before(instances[i-1].InstanceDate) {
			t.Fatal("instances not sorted oldest first")
		}
		wantBacklog := inst.InstanceDate.Before(time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))
		if inst.Backlog != wantBacklog {
			t.Errorf("instance %v backlog = %v, want %v", inst.InstanceDate, inst.Backlog, wantBacklog)
		}
	}
}

func TestListInstances_CompletedDaysExcluded(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	// Clear the oldest backlog day.
	if _, err := f.svc.Complete(context.Background(), CompleteInput{
		TaskID:       task.ID,
		InstanceDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		PerformedBy:  f.doerID,
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &f.doerID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected 3 instances after clearing one, got %d", len(instances))
	}
	for _, inst := range instances {
		if inst.InstanceDate.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
			t.Fatal("completed day still listed")
		}
	}
}

func TestListInstances_PausedExcluded(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	if err := f.svc.Pause(context.Background(), task.ID, nil); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &f.doerID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected no instances for paused checklist, got %d", len(instances))
	}
}

func TestListInstances_BuddyCoverage(t *testing.T) {
	f := newFixture(t)
	f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	buddyID := uuid.New()
	f.employees.employees[buddyID] = &models.Employee{
		ID:       buddyID,
		TenantID: f.tenantID,
		Name:     "Blake",
		Roles:    []models.Role{models.RoleDoer},
	}

	start := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	f.employees.employees[f.doerID].Leave = models.Leave{
		OnLeave:   true,
		StartDate: &start,
		EndDate:   &end,
		BuddyID:   &buddyID,
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &buddyID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 covered instance, got %d", len(instances))
	}

	inst := instances[0]
	if !inst.BuddyTask {
		t.Fatal("expected buddy flag")
	}
	if inst.DoerID != buddyID {
		t.Fatalf("instance doer = %v, want buddy %v", inst.DoerID, buddyID)
	}
	if inst.OriginalOwnerName != "Dana" {
		t.Fatalf("original owner = %q, want Dana", inst.OriginalOwnerName)
	}
}

func TestListInstances_OnLeaveDoerSeesNothing(t *testing.T) {
	f := newFixture(t)
	f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	buddyID := uuid.New()
	f.employees.employees[buddyID] = &models.Employee{
		ID: buddyID, TenantID: f.tenantID, Name: "Blake",
	}

	// Dana is away Jan 7 through 12; today is Jan 8. Her occurrences belong
	// to Blake until she returns, and her own listing is empty.
	start := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	f.employees.employees[f.doerID].Leave = models.Leave{
		OnLeave:   true,
		StartDate: &start,
		EndDate:   &end,
		BuddyID:   &buddyID,
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &f.doerID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected no instances for a doer on leave, got %d", len(instances))
	}
}

func TestListInstances_OnLeaveWithoutBuddySeesNothing(t *testing.T) {
	f := newFixture(t)
	f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	// No buddy set; the occurrences are nobody's until Dana returns, but
	// they must not show up in her own listing either.
	start := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	f.employees.employees[f.doerID].Leave = models.Leave{
		OnLeave:   true,
		StartDate: &start,
		EndDate:   &end,
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &f.doerID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected no instances for a doer on leave, got %d", len(instances))
	}
}

func TestListInstances_LeaveOutsideWindowNotCovered(t *testing.T) {
	f := newFixture(t)
	f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	buddyID := uuid.New()
	f.employees.employees[buddyID] = &models.Employee{
		ID: buddyID, TenantID: f.tenantID, Name: "Blake",
	}

	// Leave window ended before today.
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	f.employees.employees[f.doerID].Leave = models.Leave{
		OnLeave:   true,
		StartDate: &start,
		EndDate:   &end,
		BuddyID:   &buddyID,
	}

	instances, err := f.svc.ListInstances(context.Background(), f.tenantID, &buddyID)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected no coverage outside leave window, got %d instances", len(instances))
	}
}

func TestUpdate_RuleChangeReresolvesPointer(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	// Switch to weekly on Fridays.
	friday := 5
	rule := scheduling.RuleConfig{Kind: scheduling.Weekly, DaysOfWeek: []int{friday}}
	got, err := f.svc.Update(context.Background(), task.ID, UpdateInput{Rule: &rule})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// First Friday on or after the Jan 5 start date.
	want := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	if !got.NextDueDate.Equal(want) {
		t.Fatalf("pointer = %v, want %v", got.NextDueDate, want)
	}
}

func TestResume_ReresolvesFromToday(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	if err := f.svc.Pause(context.Background(), task.ID, nil); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := f.svc.Resume(context.Background(), task.ID, nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	stored := f.checklist.tasks[task.ID]
	want := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	if !stored.NextDueDate.Equal(want) {
		t.Fatalf("pointer after resume = %v, want today %v", stored.NextDueDate, want)
	}
	if stored.Status != models.ChecklistActive {
		t.Fatalf("status = %q, want active", stored.Status)
	}
}

func TestResume_ActiveRejected(t *testing.T) {
	f := newFixture(t)
	task := f.createDaily(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC))

	if err := f.svc.Resume(context.Background(), task.ID, nil); !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict resuming an active checklist, got %v", err)
	}
}
