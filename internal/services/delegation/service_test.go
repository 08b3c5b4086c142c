// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package delegation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/scoring"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockDelegationStore struct {
	tasks map[uuid.UUID]*models.DelegationTask
}

func newMockDelegationStore() *mockDelegationStore {
	return &mockDelegationStore{tasks: make(map[uuid.UUID]*models.DelegationTask)}
}

func (m *mockDelegationStore) Create(_ context.Context, task *models.DelegationTask, opening models.DelegationHistoryItem) error {
	task.History = append(task.History, opening)
	m.tasks[task.ID] = task
	return nil
}

func (m *mockDelegationStore) GetByID(_ context.Context, id uuid.UUID) (*models.DelegationTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("delegation task")
	}
	cp := *task
	cp.History = append([]models.DelegationHistoryItem(nil), task.History...)
	cp.Files = append([]models.TaskFile(nil), task.Files...)
	return &cp, nil
}

func (m *mockDelegationStore) List(_ context.Context, filter postgres.DelegationFilter) ([]*models.DelegationTask, error) {
	var out []*models.DelegationTask
	for _, t := range m.tasks {
		if filter.TenantID != uuid.Nil && t.TenantID != filter.TenantID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *mockDelegationStore) Update(_ context.Context, task *models.DelegationTask) error {
	stored, ok := m.tasks[task.ID]
	if !ok {
		return apperrors.NotFound("delegation task")
	}
	history := stored.History
	cp := *task
	cp.History = history
	m.tasks[task.ID] = &cp
	return nil
}

func (m *mockDelegationStore) UpdateStatus(_ context.Context, taskID uuid.UUID, from, to models.DelegationStatus, item models.DelegationHistoryItem) error {
	task, ok := m.tasks[taskID]
	if !ok {
		return apperrors.NotFound("delegation task")
	}
	if task.Status != from {
		return apperrors.Conflict("task status changed concurrently")
	}
	task.Status = to
	task.History = append(task.History, item)
	return nil
}

func (m *mockDelegationStore) AppendHistory(_ context.Context, item models.DelegationHistoryItem) error {
	task, ok := m.tasks[item.TaskID]
	if !ok {
		return apperrors.NotFound("delegation task")
	}
	task.History = append(task.History, item)
	return nil
}

func (m *mockDelegationStore) AddFile(_ context.Context, file *models.TaskFile) error {
	task, ok := m.tasks[file.TaskID]
	if !ok {
		return apperrors.NotFound("delegation task")
	}
	task.Files = append(task.Files, *file)
	return nil
}

func (m *mockDelegationStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return apperrors.NotFound("delegation task")
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

func (m *mockEmployeeStore) AddPoints(_ context.Context, id uuid.UUID, delta int) (int, error) {
	e, ok := m.employees[id]
	if !ok {
		return 0, apperrors.NotFound("employee")
	}
	e.TotalPoints += delta
	return e.TotalPoints, nil
}

func (m *mockEmployeeStore) AppendBadge(_ context.Context, id uuid.UUID, badge models.EarnedBadge) error {
	e, ok := m.employees[id]
	if !ok {
		return apperrors.NotFound("employee")
	}
	e.EarnedBadges = append(e.EarnedBadges, badge)
	return nil
}

type mockTenantStore struct {
	tenant *models.Tenant
}

func (m *mockTenantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	if m.tenant == nil || m.tenant.ID != id {
		return nil, apperrors.NotFound("tenant")
	}
	return m.tenant, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var testNow = time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc        *Service
	store      *mockDelegationStore
	employees  *mockEmployeeStore
	tenantID   uuid.UUID
	assignerID uuid.UUID
	doerID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      newMockDelegationStore(),
		employees:  newMockEmployeeStore(),
		tenantID:   uuid.New(),
		assignerID: uuid.New(),
		doerID:     uuid.New(),
	}

	tenant := &models.Tenant{
		ID:   f.tenantID,
		Name: "Acme",
		PointSettings: models.PointSettings{
			Active: true,
			Brackets: []models.PointBracket{
				{Label: "standard", MaxDurationDays: 30, Unit: models.UnitDay, EarlyBonus: 10, LatePenalty: 15},
			},
		},
	}

	f.employees.employees[f.assignerID] = &models.Employee{
		ID: f.assignerID, TenantID: f.tenantID, Name: "Alex",
		Roles: []models.Role{models.RoleAssigner},
	}
	f.employees.employees[f.doerID] = &models.Employee{
		ID: f.doerID, TenantID: f.tenantID, Name: "Dana",
		Roles: []models.Role{models.RoleDoer},
	}

	f.svc = NewService(f.store, f.employees, &mockTenantStore{tenant: tenant}, nil, nil, logger.Nop())
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) createTask(t *testing.T, deadline time.Time) *models.DelegationTask {
	t.Helper()
	task, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:   f.tenantID,
		Title:      "prepare quarterly report",
		AssignerID: f.assignerID,
		DoerID:     f.doerID,
		Deadline:   deadline,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func (f *fixture) transition(t *testing.T, taskID uuid.UUID, to models.DelegationStatus, actor uuid.UUID) *models.DelegationTask {
	t.Helper()
	task, err := f.svc.Transition(context.Background(), TransitionInput{
		TaskID: taskID, To: to, ActorID: actor,
	})
	if err != nil {
		t.Fatalf("Transition to %s: %v", to, err)
	}
	return task
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(5*24*time.Hour))

	if task.Status != models.DelegationPending {
		t.Fatalf("status = %q, want pending", task.Status)
	}
	if task.Priority != models.PriorityMedium {
		t.Fatalf("priority = %q, want medium default", task.Priority)
	}
	if len(task.History) != 1 || task.History[0].Action != "created" {
		t.Fatalf("expected one opening history entry, got %+v", task.History)
	}
}

func TestCreate_PastDeadlineRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		TenantID:   f.tenantID,
		Title:      "too late",
		AssignerID: f.assignerID,
		DoerID:     f.doerID,
		Deadline:   testNow.Add(-time.Hour),
	})
	if !apperrors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input error for past deadline, got %v", err)
	}
}

func TestTransition_HappyPath(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(5*24*time.Hour))

	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)
	got := f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	if got.Status != models.DelegationVerified {
		t.Fatalf("status = %q, want verified", got.Status)
	}
}

func TestTransition_IllegalStepRejected(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(5*24*time.Hour))

	// Pending cannot jump straight to verified.
	_, err := f.svc.Transition(context.Background(), TransitionInput{
		TaskID: task.ID, To: models.DelegationVerified, ActorID: f.assignerID,
	})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict for illegal transition, got %v", err)
	}
}

func TestTransition_TerminalStateFrozen(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(5*24*time.Hour))

	f.transition(t, task.ID, models.DelegationRejected, f.assignerID)

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		TaskID: task.ID, To: models.DelegationAccepted, ActorID: f.doerID,
	})
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict leaving terminal state, got %v", err)
	}
}

func TestVerify_ScoresDoerAndAssigner(t *testing.T) {
	f := newFixture(t)

	// Deadline 5 days out; the doer completes immediately, 5 days early at
	// 10 points per day.
	task := f.createTask(t, testNow.Add(5*24*time.Hour))
	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)
	f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	if got := f.employees.employees[f.doerID].TotalPoints; got != 50 {
		t.Fatalf("doer points = %d, want 50", got)
	}
	// Kickback is 10% of 50.
	if got := f.employees.employees[f.assignerID].TotalPoints; got != 5 {
		t.Fatalf("assigner points = %d, want 5", got)
	}

	stored := f.store.tasks[task.ID]
	var scored bool
	for _, h := range stored.History {
		if h.Action == scoring.HistoryActionPoints {
			scored = true
		}
	}
	if !scored {
		t.Fatal("expected a points history entry")
	}
}

func TestVerify_LateCompletionGoesNegative(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(5*24*time.Hour))

	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)

	// Rewrite the completion timestamp to 2 days past the deadline before
	// the verification scores it.
	stored := f.store.tasks[task.ID]
	for i := range stored.History {
		if stored.History[i].Action == string(models.DelegationCompleted) {
			stored.History[i].Timestamp = task.Deadline.Add(2 * 24 * time.Hour)
		}
	}

	f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	// 2 days late at 15 penalty per day.
	if got := f.employees.employees[f.doerID].TotalPoints; got != -30 {
		t.Fatalf("doer points = %d, want -30", got)
	}
	if got := f.employees.employees[f.assignerID].TotalPoints; got != 0 {
		t.Fatalf("assigner points = %d, want 0 kickback on negative score", got)
	}
}

func TestVerify_RevisedDeadlineWins(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, testNow.Add(2*24*time.Hour))

	revised := testNow.Add(7 * 24 * time.Hour)
	if _, err := f.svc.Transition(context.Background(), TransitionInput{
		TaskID:          task.ID,
		To:              models.DelegationRevisionRequested,
		ActorID:         f.doerID,
		RevisedDeadline: &revised,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)
	f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	// Scored against the revised deadline, 7 days early at 10 per day.
	if got := f.employees.employees[f.doerID].TotalPoints; got != 70 {
		t.Fatalf("doer points = %d, want 70", got)
	}
}

func TestVerify_BadgeUnlock(t *testing.T) {
	f := newFixture(t)

	badge := models.Badge{ID: uuid.New(), Name: "Half Century", PointThreshold: 50}
	tenant := &models.Tenant{
		ID: f.tenantID,
		PointSettings: models.PointSettings{
			Active: true,
			Brackets: []models.PointBracket{
				{Label: "standard", MaxDurationDays: 30, Unit: models.UnitDay, EarlyBonus: 10, LatePenalty: 15},
			},
		},
		BadgeLibrary: []models.Badge{badge},
	}
	f.svc = NewService(f.store, f.employees, &mockTenantStore{tenant: tenant}, nil, nil, logger.Nop())
	f.svc.now = func() time.Time { return testNow }

	task := f.createTask(t, testNow.Add(5*24*time.Hour))
	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)
	f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	earned := f.employees.employees[f.doerID].EarnedBadges
	if len(earned) != 1 || earned[0].BadgeID != badge.ID {
		t.Fatalf("expected Half Century unlock, got %+v", earned)
	}
}

func TestVerify_ScoringDisabled(t *testing.T) {
	f := newFixture(t)
	f.svc = NewService(f.store, f.employees, &mockTenantStore{tenant: &models.Tenant{ID: f.tenantID}}, nil, nil, logger.Nop())
	f.svc.now = func() time.Time { return testNow }

	task := f.createTask(t, testNow.Add(5*24*time.Hour))
	f.transition(t, task.ID, models.DelegationAccepted, f.doerID)
	f.transition(t, task.ID, models.DelegationCompleted, f.doerID)
	f.transition(t, task.ID, models.DelegationVerified, f.assignerID)

	if got := f.employees.employees[f.doerID].TotalPoints; got != 0 {
		t.Fatalf("doer points = %d, want 0 with scoring off", got)
	}
}
