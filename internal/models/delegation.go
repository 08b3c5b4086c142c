// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority is a delegation task's urgency level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriorities contains all priorities.
var ValidPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
	PriorityUrgent: true,
}

// DelegationStatus is a delegation task's workflow state.
type DelegationStatus string

const (
	DelegationPending           DelegationStatus = "pending"
	DelegationAccepted          DelegationStatus = "accepted"
	DelegationRevisionRequested DelegationStatus = "revision_requested"
	DelegationCompleted         DelegationStatus = "completed"
	DelegationVerified          DelegationStatus = "verified"
	DelegationRejected          DelegationStatus = "rejected"
)

// ValidDelegationStatuses contains all workflow states.
var ValidDelegationStatuses = map[DelegationStatus]bool{
	DelegationPending:           true,
	DelegationAccepted:          true,
	DelegationRevisionRequested: true,
	DelegationCompleted:         true,
	DelegationVerified:          true,
	DelegationRejected:          true,
}

// delegationTransitions defines the allowed status machine. Rejected and
// verified are terminal.
var delegationTransitions = map[DelegationStatus][]DelegationStatus{
	DelegationPending:           {DelegationAccepted, DelegationRevisionRequested, DelegationRejected},
	DelegationAccepted:          {DelegationCompleted, DelegationRevisionRequested},
	DelegationRevisionRequested: {DelegationAccepted, DelegationRejected},
	DelegationCompleted:         {DelegationVerified, DelegationRevisionRequested},
}

// CanTransition reports whether moving from to next is a legal workflow step.
func CanTransition(from, to DelegationStatus) bool {
	for _, next := range delegationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DelegationTask is a one-off assigned piece of work.
type DelegationTask struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description,omitempty" db:"description"`
	AssignerID    uuid.UUID  `json:"assigner_id" db:"assigner_id"`
	DoerID        uuid.UUID  `json:"doer_id" db:"doer_id"`
	CoordinatorID *uuid.UUID `json:"coordinator_id,omitempty" db:"coordinator_id"`

	HelperDoers []uuid.UUID `json:"helper_doers,omitempty" db:"-"`
	Coworkers   []uuid.UUID `json:"coworkers,omitempty" db:"-"`

	Priority Priority         `json:"priority" db:"priority"`
	Status   DelegationStatus `json:"status" db:"status"`

	Deadline        time.Time  `json:"deadline" db:"deadline"`
	RevisedDeadline *time.Time `json:"revised_deadline,omitempty" db:"revised_deadline"`
	Remarks         string     `json:"remarks,omitempty" db:"remarks"`

	Files   []TaskFile              `json:"files,omitempty" db:"-"`
	History []DelegationHistoryItem `json:"history,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TaskFile is an attachment on a delegation task.
type TaskFile struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TaskID     uuid.UUID `json:"task_id" db:"task_id"`
	FileName   string    `json:"file_name" db:"file_name"`
	Path       string    `json:"path" db:"path"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// DelegationHistoryItem is one audit record on a delegation task.
type DelegationHistoryItem struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	TaskID      uuid.UUID  `json:"task_id" db:"task_id"`
	Action      string     `json:"action" db:"action"`
	Timestamp   time.Time  `json:"timestamp" db:"timestamp"`
	Remarks     string     `json:"remarks,omitempty" db:"remarks"`
	PerformedBy *uuid.UUID `json:"performed_by,omitempty" db:"performed_by"`
}
