// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/scheduling"
)

// ReviewView selects the review window around a reference date.
type ReviewView string

const (
	ReviewDaily   ReviewView = "daily"
	ReviewWeekly  ReviewView = "weekly"
	ReviewMonthly ReviewView = "monthly"
)

// ValidReviewViews contains all review views.
var ValidReviewViews = map[ReviewView]bool{
	ReviewDaily:   true,
	ReviewWeekly:  true,
	ReviewMonthly: true,
}

// ReviewCounts is one expected-versus-actual tally. NotDone is the shortfall
// against the expected count; Overdue is the portion of that shortfall whose
// window has already started.
type ReviewCounts struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Late    int `json:"late"`
	Overdue int `json:"overdue"`
	NotDone int `json:"not_done"`
}

// ReviewRow is one employee's tallies for the review window.
type ReviewRow struct {
	EmployeeID   uuid.UUID    `json:"employee_id"`
	EmployeeName string       `json:"employee_name"`
	Department   string       `json:"department,omitempty"`
	Delegation   ReviewCounts `json:"delegation"`
	Checklist    ReviewCounts `json:"checklist"`
}

// Review is the per-employee expected-versus-actual breakdown for one
// tenant and window.
type Review struct {
	TenantID uuid.UUID   `json:"tenant_id"`
	View     ReviewView  `json:"view"`
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	Rows     []ReviewRow `json:"rows"`
}

// Review tallies, per employee, how much work the window expected against
// how much was recorded. Delegations count when their effective deadline
// falls inside the window; checklists contribute a frequency-derived
// expected count and the completions recorded inside the window.
func (s *Service) Review(ctx context.Context, tenantID uuid.UUID, view ReviewView, reference time.Time) (*Review, error) {
	if !ValidReviewViews[view] {
		return nil, apperrors.InvalidInput("view must be daily, weekly or monthly")
	}

	from, to := reviewWindow(view, reference.UTC())
	now := s.now().UTC()

	employees, err := s.employeeRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	delegations, err := s.delegationRepo.ListByDeadlineRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	checklists, err := s.checklistRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byDoerDelegations := make(map[uuid.UUID][]*models.DelegationTask)
	for _, t := range delegations {
		byDoerDelegations[t.DoerID] = append(byDoerDelegations[t.DoerID], t)
	}
	byDoerChecklists := make(map[uuid.UUID][]*models.ChecklistTask)
	for _, t := range checklists {
		if t.Status != models.ChecklistActive {
			continue
		}
		byDoerChecklists[t.DoerID] = append(byDoerChecklists[t.DoerID], t)
	}

	review := &Review{TenantID: tenantID, View: view, From: from, To: to}
	for _, emp := range employees {
		row := ReviewRow{
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			Department:   emp.Department,
		}
		for _, t := range byDoerDelegations[emp.ID] {
			tallyDelegation(&row.Delegation, t, now)
		}
		for _, t := range byDoerChecklists[emp.ID] {
			tallyChecklist(&row.Checklist, t, view, from, to, now)
		}
		review.Rows = append(review.Rows, row)
	}

	return review, nil
}

// reviewWindow returns the half-open UTC window [from, to) for a view around
// the reference date. Weeks start on Monday; months run calendar-aligned.
func reviewWindow(view ReviewView, reference time.Time) (time.Time, time.Time) {
	day := scheduling.Day(reference)
	switch view {
	case ReviewDaily:
		return day, day.AddDate(0, 0, 1)
	case ReviewMonthly:
		from := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	default:
		offset := int(day.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset = 6 // Sunday belongs to the preceding week
		}
		from := day.AddDate(0, 0, -offset)
		return from, from.AddDate(0, 0, 7)
	}
}

func tallyDelegation(counts *ReviewCounts, t *models.DelegationTask, now time.Time) {
	counts.Total++

	deadline := t.Deadline
	if t.RevisedDeadline != nil {
		deadline = *t.RevisedDeadline
	}

	var done *models.DelegationHistoryItem
	for i := range t.History {
		action := models.DelegationStatus(t.History[i].Action)
		if action == models.DelegationCompleted || action == models.DelegationVerified {
			done = &t.History[i]
			break
		}
	}

	if done != nil {
		counts.Done++
		if done.Timestamp.After(deadline) {
			counts.Late++
		}
		return
	}

	counts.NotDone++
	if deadline.Before(now) {
		counts.Overdue++
	}
}

func tallyChecklist(counts *ReviewCounts, t *models.ChecklistTask, view ReviewView, from, to, now time.Time) {
	expected := expectedOccurrences(t.Rule.Kind, view)

	var done, late int
	for _, h := range t.History {
		if !models.CompletionActions[h.Action] {
			continue
		}
		if h.Timestamp.Before(from) || !h.Timestamp.Before(to) {
			continue
		}
		done++
		if h.InstanceDate != nil && scheduling.Day(h.Timestamp).After(scheduling.Day(*h.InstanceDate)) {
			late++
		}
	}

	counts.Total += expected
	counts.Done += done
	counts.Late += late

	missed := expected - done
	if missed < 0 {
		missed = 0
	}
	counts.NotDone += missed
	if missed > 0 && !now.Before(from) {
		counts.Overdue += missed
	}
}

// expectedOccurrences approximates how many occurrences of a frequency fall
// inside a view window. A daily task expects 30 in a month and 7 in a week;
// a weekly task expects 4 in a month; everything slower expects 1.
func expectedOccurrences(kind scheduling.FrequencyKind, view ReviewView) int {
	switch kind {
	case scheduling.Daily:
		switch view {
		case ReviewDaily:
			return 1
		case ReviewMonthly:
			return 30
		default:
			return 7
		}
	case scheduling.Weekly:
		if view == ReviewMonthly {
			return 4
		}
		return 1
	default:
		return 1
	}
}
