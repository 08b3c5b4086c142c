// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package checklist orchestrates recurring checklist tasks: creating them
// with a resolved first due date, materializing the occurrences visible
// today, and moving the due-date pointer when the right occurrence is
// completed.
package checklist

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/nats"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
	"github.com/lrbcloud/taskloop/internal/scheduling"
	"github.com/lrbcloud/taskloop/internal/storage"
)

// ChecklistStore is the persistence surface the service needs, satisfied by
// postgres.ChecklistRepository.
type ChecklistStore interface {
	Create(ctx context.Context, task *models.ChecklistTask, opening models.ChecklistHistoryEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistTask, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.ChecklistTask, error)
	ListByDoer(ctx context.Context, tenantID, doerID uuid.UUID) ([]*models.ChecklistTask, error)
	Update(ctx context.Context, task *models.ChecklistTask) error
	AdvanceNextDue(ctx context.Context, taskID uuid.UUID, from, to time.Time, entry models.ChecklistHistoryEntry) error
	AppendHistory(ctx context.Context, entry models.ChecklistHistoryEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EmployeeStore provides the employee lookups used for validation and buddy
// coverage, satisfied by postgres.EmployeeRepository.
type EmployeeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ListOnLeaveWithBuddy(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error)
}

// TenantStore provides tenant lookups, satisfied by
// postgres.TenantRepository.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Service handles recurring checklist operations.
type Service struct {
	checklistRepo ChecklistStore
	employeeRepo  EmployeeStore
	tenantRepo    TenantStore
	cache         *redis.CalendarCache
	files         storage.Backend
	events        *nats.EventPublisher
	logger        *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a checklist service. The cache, file backend and event
// publisher are optional; a nil cache loads the tenant calendar from the
// database on every call, a nil backend rejects evidence uploads and a nil
// publisher disables events.
func NewService(
	checklistRepo ChecklistStore,
	employeeRepo EmployeeStore,
	tenantRepo TenantStore,
	cache *redis.CalendarCache,
	files storage.Backend,
	events *nats.EventPublisher,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		checklistRepo: checklistRepo,
		employeeRepo:  employeeRepo,
		tenantRepo:    tenantRepo,
		cache:         cache,
		files:         files,
		events:        events,
		logger:        log.Named("checklist"),
		now:           time.Now,
	}
}

// CreateInput is the payload for creating a recurring checklist.
type CreateInput struct {
	TenantID      uuid.UUID             `json:"tenant_id" validate:"required"`
	Name          string                `json:"name" validate:"required,min=1,max=255"`
	Description   string                `json:"description,omitempty" validate:"max=2000"`
	DoerID        uuid.UUID             `json:"doer_id" validate:"required"`
	CoordinatorID *uuid.UUID            `json:"coordinator_id,omitempty"`
	Rule          scheduling.RuleConfig `json:"rule"`
	StartDate     time.Time             `json:"start_date" validate:"required"`
	CreatedBy     *uuid.UUID            `json:"created_by,omitempty"`
}

// Create registers a new recurring checklist. The first due date is resolved
// from the start date against the tenant calendar; the start date itself is
// eligible. An opening history entry is recorded in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.ChecklistTask, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("checklist name is required")
	}
	if input.DoerID == uuid.Nil {
		return nil, apperrors.InvalidInput("doer is required")
	}
	if input.StartDate.IsZero() {
		return nil, apperrors.InvalidInput("start date is required")
	}

	if _, err := s.employeeRepo.GetByID(ctx, input.DoerID); err != nil {
		return nil, err
	}

	cal, err := s.calendar(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rule := scheduling.NewRule(input.Rule)
	firstDue := scheduling.Resolve(rule, input.StartDate, true, cal)

	task := &models.ChecklistTask{
		ID:            uuid.New(),
		TenantID:      input.TenantID,
		Name:          input.Name,
		Description:   input.Description,
		DoerID:        input.DoerID,
		CoordinatorID: input.CoordinatorID,
		Rule:          input.Rule,
		StartDate:     scheduling.Day(input.StartDate),
		NextDueDate:   firstDue,
		Status:        models.ChecklistActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	opening := models.ChecklistHistoryEntry{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      models.ActionCreated,
		Timestamp:   now,
		PerformedBy: input.CreatedBy,
	}

	if err := s.checklistRepo.Create(ctx, task, opening); err != nil {
		return nil, err
	}

	s.logger.Info("checklist created",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"first_due", firstDue.Format("2006-01-02"))

	return task, nil
}

// Get returns a checklist with its full history.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*models.ChecklistTask, error) {
	return s.checklistRepo.GetByID(ctx, taskID)
}

// CompleteInput describes one completion action.
type CompleteInput struct {
	TaskID       uuid.UUID `json:"task_id"`
	InstanceDate time.Time `json:"instance_date"`
	PerformedBy  uuid.UUID `json:"performed_by"`
	Remarks      string    `json:"remarks,omitempty"`

	// Evidence is an optional file uploaded with the completion. It is
	// stored in the evidence backend and its path recorded on the history
	// entry.
	Evidence *EvidenceFile `json:"-"`

	// Administrative marks the completion as forced by a coordinator or
	// admin rather than performed by the doer.
	Administrative bool `json:"administrative,omitempty"`
}

// EvidenceFile carries an evidence upload stream.
type EvidenceFile struct {
	FileName string
	Reader   io.Reader
	Size     int64
}

// Complete records the completion of one occurrence. Completing the exact
// pointer date advances the schedule to the next resolved occurrence;
// completing any older backlog date only records history. Two concurrent
// completions of the pointer date race on a conditional update, and the
// loser gets a conflict error.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (*models.ChecklistTask, error) {
	task, err := s.checklistRepo.GetByID(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.ChecklistActive {
		return nil, apperrors.Conflict("checklist is paused")
	}

	instanceDay := scheduling.Day(input.InstanceDate)
	now := s.now().UTC()

	action := models.ActionCompleted
	if input.Administrative {
		action = models.ActionAdminCompleted
	}

	performedBy := input.PerformedBy
	entry := models.ChecklistHistoryEntry{
		ID:           uuid.New(),
		TaskID:       task.ID,
		Action:       action,
		Timestamp:    now,
		InstanceDate: &instanceDay,
		Remarks:      input.Remarks,
		PerformedBy:  &performedBy,
	}

	if input.Evidence != nil {
		stored, err := s.storeEvidence(ctx, task, entry.ID, input.Evidence)
		if err != nil {
			return nil, err
		}
		entry.AttachmentPath = stored
	}

	advances := scheduling.ShouldAdvance(task.NextDueDate, instanceDay)
	if advances {
		cal, err := s.calendar(ctx, task.TenantID)
		if err != nil {
			s.discardEvidence(ctx, entry.AttachmentPath)
			return nil, err
		}

		next := scheduling.Resolve(scheduling.NewRule(task.Rule), task.NextDueDate, false, cal)
		if err := s.checklistRepo.AdvanceNextDue(ctx, task.ID, task.NextDueDate, next, entry); err != nil {
			s.discardEvidence(ctx, entry.AttachmentPath)
			return nil, err
		}
		task.NextDueDate = next
		task.LastCompletedAt = &now
	} else {
		if err := s.checklistRepo.AppendHistory(ctx, entry); err != nil {
			s.discardEvidence(ctx, entry.AttachmentPath)
			return nil, err
		}
	}
	task.History = append(task.History, entry)

	s.publishCompleted(task, entry, instanceDay.Before(scheduling.Day(now)))

	return task, nil
}

// storeEvidence writes an evidence upload under the tenant and task prefix
// and returns the stored path.
func (s *Service) storeEvidence(ctx context.Context, task *models.ChecklistTask, entryID uuid.UUID, ev *EvidenceFile) (string, error) {
	if s.files == nil {
		return "", apperrors.New(apperrors.CodeStorageError, "file storage is not configured")
	}
	if ev.FileName == "" {
		return "", apperrors.InvalidInput("evidence file name is required")
	}

	stored := path.Join(task.TenantID.String(), task.ID.String(), entryID.String()+"_"+path.Base(ev.FileName))
	if err := s.files.Write(ctx, stored, ev.Reader, ev.Size); err != nil {
		return "", err
	}
	return stored, nil
}

// discardEvidence removes a stored evidence blob after its completion could
// not be recorded.
func (s *Service) discardEvidence(ctx context.Context, stored string) {
	if stored == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(ctx, stored); err != nil {
		s.logger.Warn("failed to clean up orphaned evidence",
			"path", stored, "error", err)
	}
}

// OpenEvidence returns a reader for a stored evidence file.
func (s *Service) OpenEvidence(ctx context.Context, storedPath string) (io.ReadCloser, error) {
	if s.files == nil {
		return nil, apperrors.New(apperrors.CodeStorageError, "file storage is not configured")
	}
	return s.files.Read(ctx, storedPath)
}

// ListInstances materializes the occurrences visible today for a tenant,
// optionally filtered to one doer. When the filter names a buddy covering a
// colleague on leave, the colleague's instances are included and flagged.
func (s *Service) ListInstances(ctx context.Context, tenantID uuid.UUID, doerID *uuid.UUID) ([]models.ChecklistInstance, error) {
	cal, err := s.calendar(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	today := scheduling.Day(s.now().UTC())
	covered, err := s.leaveCoverage(ctx, tenantID, today)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasksForListing(ctx, tenantID, doerID, covered, today)
	if err != nil {
		return nil, err
	}

	var out []models.ChecklistInstance
	for _, task := range tasks {
		if task.Status != models.ChecklistActive {
			continue
		}

		occs, err := scheduling.Reconcile(
			scheduling.NewRule(task.Rule),
			task.NextDueDate,
			today,
			task.CompletionRecords(),
			cal,
		)
		if err != nil {
			// Stalled resolvers still produce valid instances; log and keep.
			s.logger.Warn("resolver stalled during reconciliation",
				"task_id", task.ID, "error", err)
		}

		for _, occ := range occs {
			inst := models.ChecklistInstance{
				TaskID:        task.ID,
				TenantID:      task.TenantID,
				Name:          task.Name,
				Description:   task.Description,
				DoerID:        task.DoerID,
				CoordinatorID: task.CoordinatorID,
				InstanceDate:  occ.Date,
				Backlog:       occ.Backlog,
			}
			if owner, ok := covered[task.DoerID]; ok {
				inst.BuddyTask = true
				inst.OriginalOwnerID = owner.ID.String()
				inst.OriginalOwnerName = owner.Name
				if owner.Leave.BuddyID != nil {
					inst.DoerID = *owner.Leave.BuddyID
				}
			}
			out = append(out, inst)
		}
	}

	return out, nil
}

// UpdateInput carries the mutable checklist fields.
type UpdateInput struct {
	Name          string                 `json:"name,omitempty"`
	Description   *string                `json:"description,omitempty"`
	DoerID        *uuid.UUID             `json:"doer_id,omitempty"`
	CoordinatorID *uuid.UUID             `json:"coordinator_id,omitempty"`
	Rule          *scheduling.RuleConfig `json:"rule,omitempty"`
	StartDate     *time.Time             `json:"start_date,omitempty"`
	PerformedBy   *uuid.UUID             `json:"performed_by,omitempty"`
}

// Update edits a checklist. Changing the rule or the start date re-resolves
// the due-date pointer from the start date as if the task were new;
// completion history is never rewritten.
func (s *Service) Update(ctx context.Context, taskID uuid.UUID, input UpdateInput) (*models.ChecklistTask, error) {
	task, err := s.checklistRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		task.Name = input.Name
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.DoerID != nil {
		if _, err := s.employeeRepo.GetByID(ctx, *input.DoerID); err != nil {
			return nil, err
		}
		task.DoerID = *input.DoerID
	}
	if input.CoordinatorID != nil {
		task.CoordinatorID = input.CoordinatorID
	}

	reresolve := false
	if input.Rule != nil {
		task.Rule = *input.Rule
		reresolve = true
	}
	if input.StartDate != nil {
		task.StartDate = scheduling.Day(*input.StartDate)
		reresolve = true
	}

	if reresolve {
		cal, err := s.calendar(ctx, task.TenantID)
		if err != nil {
			return nil, err
		}
		task.NextDueDate = scheduling.Resolve(scheduling.NewRule(task.Rule), task.StartDate, true, cal)
	}

	task.UpdatedAt = s.now().UTC()
	if err := s.checklistRepo.Update(ctx, task); err != nil {
		return nil, err
	}

	entry := models.ChecklistHistoryEntry{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      models.ActionUpdated,
		Timestamp:   task.UpdatedAt,
		PerformedBy: input.PerformedBy,
	}
	if err := s.checklistRepo.AppendHistory(ctx, entry); err != nil {
		return nil, err
	}

	return task, nil
}

// Pause stops a checklist from producing occurrences until resumed.
func (s *Service) Pause(ctx context.Context, taskID uuid.UUID, performedBy *uuid.UUID) error {
	return s.setStatus(ctx, taskID, models.ChecklistPaused, models.ActionPaused, performedBy)
}

// Resume reactivates a paused checklist. The due-date pointer is re-resolved
// from today so the pause window does not flood the doer with backlog.
func (s *Service) Resume(ctx context.Context, taskID uuid.UUID, performedBy *uuid.UUID) error {
	task, err := s.checklistRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == models.ChecklistActive {
		return apperrors.Conflict("checklist is already active")
	}

	cal, err := s.calendar(ctx, task.TenantID)
	if err != nil {
		return err
	}

	today := scheduling.Day(s.now().UTC())
	task.Status = models.ChecklistActive
	task.NextDueDate = scheduling.Resolve(scheduling.NewRule(task.Rule), today, true, cal)
	task.UpdatedAt = s.now().UTC()

	if err := s.checklistRepo.Update(ctx, task); err != nil {
		return err
	}

	return s.checklistRepo.AppendHistory(ctx, models.ChecklistHistoryEntry{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      models.ActionResumed,
		Timestamp:   task.UpdatedAt,
		PerformedBy: performedBy,
	})
}

// Delete removes a checklist and its history.
func (s *Service) Delete(ctx context.Context, taskID uuid.UUID) error {
	return s.checklistRepo.Delete(ctx, taskID)
}

// ListByTenant returns all checklists for a tenant.
func (s *Service) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.ChecklistTask, error) {
	return s.checklistRepo.ListByTenant(ctx, tenantID)
}

// ============================================================================
// Internal helpers
// ============================================================================

func (s *Service) setStatus(ctx context.Context, taskID uuid.UUID, status models.ChecklistStatus, action models.HistoryAction, performedBy *uuid.UUID) error {
	task, err := s.checklistRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == status {
		return apperrors.Conflict("checklist is already " + string(status))
	}

	task.Status = status
	task.UpdatedAt = s.now().UTC()
	if err := s.checklistRepo.Update(ctx, task); err != nil {
		return err
	}

	return s.checklistRepo.AppendHistory(ctx, models.ChecklistHistoryEntry{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      action,
		Timestamp:   task.UpdatedAt,
		PerformedBy: performedBy,
	})
}

// calendarPayload is the cacheable projection of a tenant's calendar.
type calendarPayload struct {
	Weekends []int       `json:"weekends"`
	Holidays []time.Time `json:"holidays"`
}

// calendar loads the tenant's scheduling calendar, via the cache when one is
// configured.
func (s *Service) calendar(ctx context.Context, tenantID uuid.UUID) (scheduling.Calendar, error) {
	load := func() (*calendarPayload, error) {
		tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		p := &calendarPayload{Weekends: tenant.Weekends}
		for _, h := range tenant.Holidays {
			p.Holidays = append(p.Holidays, h.Date)
		}
		return p, nil
	}

	var payload calendarPayload
	if s.cache != nil {
		err := s.cache.GetOrSetTenant(ctx, tenantID.String(), &payload, func() (interface{}, error) {
			return load()
		})
		if err != nil {
			return scheduling.Calendar{}, err
		}
	} else {
		p, err := load()
		if err != nil {
			return scheduling.Calendar{}, err
		}
		payload = *p
	}

	weekend := make([]time.Weekday, 0, len(payload.Weekends))
	for _, w := range payload.Weekends {
		if w >= 0 && w <= 6 {
			weekend = append(weekend, time.Weekday(w))
		}
	}
	return scheduling.NewCalendar(payload.Holidays, weekend), nil
}

// leaveCoverage maps each doer currently on buddy-covered leave to their
// employee record.
func (s *Service) leaveCoverage(ctx context.Context, tenantID uuid.UUID, today time.Time) (map[uuid.UUID]*models.Employee, error) {
	onLeave, err := s.employeeRepo.ListOnLeaveWithBuddy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	covered := make(map[uuid.UUID]*models.Employee)
	for _, e := range onLeave {
		if e.Leave.CoversDay(today) {
			covered[e.ID] = e
		}
	}
	return covered, nil
}

// tasksForListing selects the tasks visible to the optional doer filter,
// folding in tasks owned by colleagues the doer is covering. A doer whose
// own leave covers today sees none of their own tasks; those belong to
// their buddy for the duration, or to nobody when no buddy is set.
func (s *Service) tasksForListing(ctx context.Context, tenantID uuid.UUID, doerID *uuid.UUID, covered map[uuid.UUID]*models.Employee, today time.Time) ([]*models.ChecklistTask, error) {
	if doerID == nil {
		return s.checklistRepo.ListByTenant(ctx, tenantID)
	}

	viewer, err := s.employeeRepo.GetByID(ctx, *doerID)
	if err != nil {
		return nil, err
	}

	var tasks []*models.ChecklistTask
	if !viewer.Leave.CoversDay(today) {
		tasks, err = s.checklistRepo.ListByDoer(ctx, tenantID, *doerID)
		if err != nil {
			return nil, err
		}
	}

	for ownerID, owner := range covered {
		if owner.Leave.BuddyID == nil || *owner.Leave.BuddyID != *doerID {
			continue
		}
		buddyTasks, err := s.checklistRepo.ListByDoer(ctx, tenantID, ownerID)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, buddyTasks...)
	}

	return tasks, nil
}

// publishCompleted emits the completion event. Delivery is best effort; a
// dead broker must not fail the request.
func (s *Service) publishCompleted(task *models.ChecklistTask, entry models.ChecklistHistoryEntry, backlog bool) {
	if s.events == nil {
		return
	}

	ev := nats.ChecklistCompletedEvent{
		TenantID:    task.TenantID,
		TaskID:      task.ID,
		TaskName:    task.Name,
		Backlog:     backlog,
		CompletedAt: entry.Timestamp,
	}
	if entry.PerformedBy != nil {
		ev.DoerID = *entry.PerformedBy
	}
	if entry.InstanceDate != nil {
		ev.InstanceDate = *entry.InstanceDate
	}

	if err := s.events.ChecklistCompleted(ev); err != nil {
		s.logger.Warn("failed to publish completion event",
			"task_id", task.ID, "error", err)
	}
}
