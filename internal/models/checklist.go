// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/scheduling"
)

// ChecklistStatus is the lifecycle state of a recurring checklist.
type ChecklistStatus string

const (
	ChecklistActive ChecklistStatus = "active"
	ChecklistPaused ChecklistStatus = "paused"
)

// ValidChecklistStatuses contains all checklist states.
var ValidChecklistStatuses = map[ChecklistStatus]bool{
	ChecklistActive: true,
	ChecklistPaused: true,
}

// HistoryAction classifies a checklist history entry.
type HistoryAction string

const (
	ActionCreated        HistoryAction = "created"
	ActionCompleted      HistoryAction = "completed"
	ActionAdminCompleted HistoryAction = "administrative_completion"
	ActionUpdated        HistoryAction = "updated"
	ActionPaused         HistoryAction = "paused"
	ActionResumed        HistoryAction = "resumed"
)

// CompletionActions are the history actions that resolve an occurrence.
var CompletionActions = map[HistoryAction]bool{
	ActionCompleted:      true,
	ActionAdminCompleted: true,
}

// ChecklistTask is a recurring task. NextDueDate is the pointer to the
// earliest outstanding occurrence; it only moves when that exact occurrence
// is completed.
type ChecklistTask struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description,omitempty" db:"description"`
	DoerID        uuid.UUID  `json:"doer_id" db:"doer_id"`
	CoordinatorID *uuid.UUID `json:"coordinator_id,omitempty" db:"coordinator_id"`

	Rule scheduling.RuleConfig `json:"rule" db:"-"`

	StartDate       time.Time  `json:"start_date" db:"start_date"`
	NextDueDate     time.Time  `json:"next_due_date" db:"next_due_date"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty" db:"last_completed_at"`

	Status    ChecklistStatus `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`

	History []ChecklistHistoryEntry `json:"history,omitempty" db:"-"`
}

// ChecklistHistoryEntry is one append-only audit record. InstanceDate names
// the logical occurrence a completion satisfies; Timestamp is when the
// action was recorded. They differ whenever backlog is cleared late.
type ChecklistHistoryEntry struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	TaskID         uuid.UUID     `json:"task_id" db:"task_id"`
	Action         HistoryAction `json:"action" db:"action"`
	Timestamp      time.Time     `json:"timestamp" db:"timestamp"`
	InstanceDate   *time.Time    `json:"instance_date,omitempty" db:"instance_date"`
	Remarks        string        `json:"remarks,omitempty" db:"remarks"`
	PerformedBy    *uuid.UUID    `json:"performed_by,omitempty" db:"performed_by"`
	AttachmentPath string        `json:"attachment_path,omitempty" db:"attachment_path"`
}

// CompletionRecords projects the completion-class history entries into the
// form the reconciler consumes.
func (t *ChecklistTask) CompletionRecords() []scheduling.CompletionRecord {
	var out []scheduling.CompletionRecord
	for _, h := range t.History {
		if !CompletionActions[h.Action] {
			continue
		}
		rec := scheduling.CompletionRecord{Timestamp: h.Timestamp}
		if h.InstanceDate != nil {
			rec.InstanceDate = *h.InstanceDate
		}
		out = append(out, rec)
	}
	return out
}

// ChecklistInstance is one visible occurrence of a checklist, as rendered
// by listing endpoints. Buddy-covered instances carry the original owner.
type ChecklistInstance struct {
	TaskID        uuid.UUID  `json:"task_id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	DoerID        uuid.UUID  `json:"doer_id"`
	CoordinatorID *uuid.UUID `json:"coordinator_id,omitempty"`

	InstanceDate time.Time `json:"instance_date"`
	Backlog      bool      `json:"backlog"`

	BuddyTask         bool   `json:"buddy_task,omitempty"`
	OriginalOwnerID   string `json:"original_owner_id,omitempty"`
	OriginalOwnerName string `json:"original_owner_name,omitempty"`
}
