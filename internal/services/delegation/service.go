// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package delegation implements the one-off task workflow: assignment,
// acceptance, completion, verification and the scoring that follows a
// verification.
package delegation

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/nats"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/scoring"
	"github.com/lrbcloud/taskloop/internal/storage"
)

// DelegationStore is the persistence surface the service needs, satisfied by
// postgres.DelegationRepository.
type DelegationStore interface {
	Create(ctx context.Context, task *models.DelegationTask, opening models.DelegationHistoryItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DelegationTask, error)
	List(ctx context.Context, filter postgres.DelegationFilter) ([]*models.DelegationTask, error)
	Update(ctx context.Context, task *models.DelegationTask) error
	UpdateStatus(ctx context.Context, taskID uuid.UUID, from, to models.DelegationStatus, item models.DelegationHistoryItem) error
	AppendHistory(ctx context.Context, item models.DelegationHistoryItem) error
	AddFile(ctx context.Context, file *models.TaskFile) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EmployeeStore provides the employee operations scoring needs, satisfied by
// postgres.EmployeeRepository.
type EmployeeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	AddPoints(ctx context.Context, id uuid.UUID, delta int) (int, error)
	AppendBadge(ctx context.Context, id uuid.UUID, badge models.EarnedBadge) error
}

// TenantStore provides tenant lookups for point settings, satisfied by
// postgres.TenantRepository.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Service handles delegation workflow operations.
type Service struct {
	delegationRepo DelegationStore
	employeeRepo   EmployeeStore
	tenantRepo     TenantStore
	files          storage.Backend
	events         *nats.EventPublisher
	logger         *logger.Logger

	now func() time.Time
}

// NewService creates a delegation service. The storage backend and event
// publisher are optional.
func NewService(
	delegationRepo DelegationStore,
	employeeRepo EmployeeStore,
	tenantRepo TenantStore,
	files storage.Backend,
	events *nats.EventPublisher,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		delegationRepo: delegationRepo,
		employeeRepo:   employeeRepo,
		tenantRepo:     tenantRepo,
		files:          files,
		events:         events,
		logger:         log.Named("delegation"),
		now:            time.Now,
	}
}

// CreateInput is the payload for assigning a task.
type CreateInput struct {
	TenantID      uuid.UUID   `json:"tenant_id" validate:"required"`
	Title         string      `json:"title" validate:"required,min=1,max=255"`
	Description   string      `json:"description,omitempty" validate:"max=5000"`
	AssignerID    uuid.UUID   `json:"assigner_id" validate:"required"`
	DoerID        uuid.UUID   `json:"doer_id" validate:"required"`
	CoordinatorID *uuid.UUID  `json:"coordinator_id,omitempty"`
	HelperDoers   []uuid.UUID `json:"helper_doers,omitempty"`
	Coworkers     []uuid.UUID `json:"coworkers,omitempty"`
	Priority      models.Priority `json:"priority"`
	Deadline      time.Time   `json:"deadline" validate:"required"`
}

// Create assigns a new task in the pending state.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.DelegationTask, error) {
	if input.Title == "" {
		return nil, apperrors.InvalidInput("task title is required")
	}
	if input.DoerID == uuid.Nil {
		return nil, apperrors.InvalidInput("doer is required")
	}
	if input.AssignerID == uuid.Nil {
		return nil, apperrors.InvalidInput("assigner is required")
	}
	if input.Deadline.IsZero() {
		return nil, apperrors.InvalidInput("deadline is required")
	}

	now := s.now().UTC()
	if input.Deadline.Before(now) {
		return nil, apperrors.InvalidInput("deadline is in the past")
	}
	if _, err := s.employeeRepo.GetByID(ctx, input.DoerID); err != nil {
		return nil, err
	}

	priority := input.Priority
	if !models.ValidPriorities[priority] {
		priority = models.PriorityMedium
	}

	task := &models.DelegationTask{
		ID:            uuid.New(),
		TenantID:      input.TenantID,
		Title:         input.Title,
		Description:   input.Description,
		AssignerID:    input.AssignerID,
		DoerID:        input.DoerID,
		CoordinatorID: input.CoordinatorID,
		HelperDoers:   input.HelperDoers,
		Coworkers:     input.Coworkers,
		Priority:      priority,
		Status:        models.DelegationPending,
		Deadline:      input.Deadline.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	assignerID := input.AssignerID
	opening := models.DelegationHistoryItem{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      "created",
		Timestamp:   now,
		PerformedBy: &assignerID,
	}

	if err := s.delegationRepo.Create(ctx, task, opening); err != nil {
		return nil, err
	}

	s.logger.Info("task assigned",
		"task_id", task.ID,
		"tenant_id", task.TenantID,
		"doer_id", task.DoerID,
		"deadline", task.Deadline.Format(time.RFC3339))

	return task, nil
}

// Get returns a task with its files and history.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*models.DelegationTask, error) {
	return s.delegationRepo.GetByID(ctx, taskID)
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, filter postgres.DelegationFilter) ([]*models.DelegationTask, error) {
	return s.delegationRepo.List(ctx, filter)
}

// TransitionInput describes one workflow step.
type TransitionInput struct {
	TaskID  uuid.UUID `json:"task_id"`
	To      models.DelegationStatus `json:"to"`
	ActorID uuid.UUID `json:"actor_id"`
	Remarks string    `json:"remarks,omitempty"`

	// RevisedDeadline may accompany a revision request.
	RevisedDeadline *time.Time `json:"revised_deadline,omitempty"`
}

// Transition moves a task through the workflow. Illegal steps are rejected
// against the status machine; the repository enforces the current status with
// a conditional update so two racing transitions cannot both win. Verifying a
// completed task triggers scoring.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (*models.DelegationTask, error) {
	task, err := s.delegationRepo.GetByID(ctx, input.TaskID)
	if err != nil {
		return nil, err
	}

	if !models.ValidDelegationStatuses[input.To] {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown status %q", input.To))
	}
	if !models.CanTransition(task.Status, input.To) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot move task from %s to %s", task.Status, input.To))
	}

	now := s.now().UTC()
	actorID := input.ActorID
	item := models.DelegationHistoryItem{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      string(input.To),
		Timestamp:   now,
		Remarks:     input.Remarks,
		PerformedBy: &actorID,
	}

	from := task.Status
	if err := s.delegationRepo.UpdateStatus(ctx, task.ID, from, input.To, item); err != nil {
		return nil, err
	}
	task.Status = input.To
	task.UpdatedAt = now
	task.History = append(task.History, item)

	if input.RevisedDeadline != nil && input.To == models.DelegationRevisionRequested {
		task.RevisedDeadline = input.RevisedDeadline
		if err := s.delegationRepo.Update(ctx, task); err != nil {
			return nil, err
		}
	}

	if input.To == models.DelegationVerified {
		if err := s.score(ctx, task, now); err != nil {
			// The transition already committed; scoring problems are logged
			// and surfaced without rolling the status back.
			s.logger.Error("scoring failed after verification",
				"task_id", task.ID, "error", err)
			return task, err
		}
	}

	s.publishStatus(task, from, input.To, input.ActorID, now)

	return task, nil
}

// AttachFile stores an attachment and records it on the task.
func (s *Service) AttachFile(ctx context.Context, taskID uuid.UUID, fileName string, reader io.Reader, size int64) (*models.TaskFile, error) {
	if s.files == nil {
		return nil, apperrors.New(apperrors.CodeStorageError, "file storage is not configured")
	}

	task, err := s.delegationRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	file := &models.TaskFile{
		ID:         uuid.New(),
		TaskID:     task.ID,
		FileName:   fileName,
		UploadedAt: s.now().UTC(),
	}
	file.Path = path.Join(task.TenantID.String(), task.ID.String(), file.ID.String()+"_"+path.Base(fileName))

	if err := s.files.Write(ctx, file.Path, reader, size); err != nil {
		return nil, err
	}

	if err := s.delegationRepo.AddFile(ctx, file); err != nil {
		// Avoid orphaned blobs when the record cannot be written.
		if delErr := s.files.Delete(ctx, file.Path); delErr != nil {
			s.logger.Warn("failed to clean up orphaned attachment",
				"path", file.Path, "error", delErr)
		}
		return nil, err
	}

	return file, nil
}

// OpenFile returns a reader for a stored attachment.
func (s *Service) OpenFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	if s.files == nil {
		return nil, apperrors.New(apperrors.CodeStorageError, "file storage is not configured")
	}
	return s.files.Read(ctx, filePath)
}

// Delete removes a task, its files and its history.
func (s *Service) Delete(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.delegationRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if s.files != nil {
		for _, f := range task.Files {
			if err := s.files.Delete(ctx, f.Path); err != nil {
				s.logger.Warn("failed to delete attachment",
					"path", f.Path, "error", err)
			}
		}
	}

	return s.delegationRepo.Delete(ctx, taskID)
}

// ============================================================================
// Scoring
// ============================================================================

// score runs the points engine for a freshly verified task: the doer is
// scored against the effective deadline, the assigner receives a kickback on
// positive scores, and any badge thresholds the new total crosses unlock.
func (s *Service) score(ctx context.Context, task *models.DelegationTask, now time.Time) error {
	tenant, err := s.tenantRepo.GetByID(ctx, task.TenantID)
	if err != nil {
		return err
	}

	engine := scoring.NewEngine(tenant.PointSettings)
	if !engine.Enabled() {
		return nil
	}

	deadline := task.Deadline
	if task.RevisedDeadline != nil {
		deadline = *task.RevisedDeadline
	}

	completedAt := s.completionTime(task, now)
	result := engine.Score(task.CreatedAt, deadline, completedAt)

	total, err := s.employeeRepo.AddPoints(ctx, task.DoerID, result.Points)
	if err != nil {
		return err
	}

	if result.AssignerKickback > 0 && task.AssignerID != task.DoerID {
		if _, err := s.employeeRepo.AddPoints(ctx, task.AssignerID, result.AssignerKickback); err != nil {
			return err
		}
	}

	doerID := task.DoerID
	if err := s.delegationRepo.AppendHistory(ctx, models.DelegationHistoryItem{
		ID:          uuid.New(),
		TaskID:      task.ID,
		Action:      scoring.HistoryActionPoints,
		Timestamp:   now,
		Remarks:     fmt.Sprintf("%+d points (%s bracket)", result.Points, result.Bracket),
		PerformedBy: &doerID,
	}); err != nil {
		return err
	}

	return s.unlockBadges(ctx, tenant, task, total, now)
}

// completionTime is the moment the doer marked the task completed, taken
// from history. Verification time is the fallback for histories recorded
// before completion timestamps existed.
func (s *Service) completionTime(task *models.DelegationTask, fallback time.Time) time.Time {
	for i := len(task.History) - 1; i >= 0; i-- {
		if task.History[i].Action == string(models.DelegationCompleted) {
			return task.History[i].Timestamp
		}
	}
	return fallback
}

func (s *Service) unlockBadges(ctx context.Context, tenant *models.Tenant, task *models.DelegationTask, total int, now time.Time) error {
	doer, err := s.employeeRepo.GetByID(ctx, task.DoerID)
	if err != nil {
		return err
	}

	for _, badge := range scoring.UnlockedBadges(tenant.BadgeLibrary, doer.EarnedBadges, total) {
		earned := models.EarnedBadge{
			BadgeID:    badge.ID,
			Name:       badge.Name,
			Icon:       badge.Icon,
			Color:      badge.Color,
			UnlockedAt: now,
		}
		if err := s.employeeRepo.AppendBadge(ctx, task.DoerID, earned); err != nil {
			return err
		}

		s.logger.Info("badge unlocked",
			"employee_id", task.DoerID,
			"badge", badge.Name,
			"total_points", total)

		if s.events != nil {
			if err := s.events.BadgeEarned(nats.BadgeEarnedEvent{
				TenantID:    task.TenantID,
				EmployeeID:  task.DoerID,
				BadgeID:     badge.ID,
				BadgeName:   badge.Name,
				TotalPoints: total,
				UnlockedAt:  now,
			}); err != nil {
				s.logger.Warn("failed to publish badge event",
					"employee_id", task.DoerID, "error", err)
			}
		}
	}

	return nil
}

// publishStatus emits a workflow event. Delivery is best effort.
func (s *Service) publishStatus(task *models.DelegationTask, from, to models.DelegationStatus, actorID uuid.UUID, now time.Time) {
	if s.events == nil {
		return
	}

	if err := s.events.DelegationStatus(nats.DelegationStatusEvent{
		TenantID:  task.TenantID,
		TaskID:    task.ID,
		Title:     task.Title,
		From:      string(from),
		To:        string(to),
		ActorID:   actorID,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("failed to publish status event",
			"task_id", task.ID, "error", err)
	}
}
