// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package scheduler runs the recurring background jobs: checklist reminders,
// delegation deadline warnings, the expired-leave sweep, and notification
// log pruning.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lrbcloud/taskloop/internal/models"
	"github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/services/notification/channels"
)

// Config holds the cron schedules and retention settings. Schedules use the
// standard five-field cron format in server-local time.
type Config struct {
	// ReminderSchedule fires the checklist and deadline reminders.
	ReminderSchedule string

	// LeaveSweepSchedule clears leave windows that have ended.
	LeaveSweepSchedule string

	// LogPruneSchedule trims the notification log.
	LogPruneSchedule string

	// LogRetention is how long delivery records are kept.
	LogRetention time.Duration

	// DeadlineLookahead is how far ahead delegation deadline warnings reach.
	DeadlineLookahead time.Duration

	// JobTimeout bounds a single job run.
	JobTimeout time.Duration
}

// DefaultConfig returns the default schedules.
func DefaultConfig() *Config {
	return &Config{
		ReminderSchedule:   "0 8 * * *",
		LeaveSweepSchedule: "10 0 * * *",
		LogPruneSchedule:   "30 2 * * *",
		LogRetention:       90 * 24 * time.Hour,
		DeadlineLookahead:  24 * time.Hour,
		JobTimeout:         10 * time.Minute,
	}
}

// TenantLister yields all tenants, satisfied by postgres.TenantRepository.
type TenantLister interface {
	List(ctx context.Context) ([]*models.Tenant, error)
}

// EmployeeLister yields a tenant's staff, satisfied by
// postgres.EmployeeRepository.
type EmployeeLister interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Employee, error)
}

// InstanceLister yields the open checklist occurrences for a tenant,
// satisfied by checklist.Service.
type InstanceLister interface {
	ListInstances(ctx context.Context, tenantID uuid.UUID, doerID *uuid.UUID) ([]models.ChecklistInstance, error)
}

// DelegationLister yields delegation tasks, satisfied by
// postgres.DelegationRepository.
type DelegationLister interface {
	List(ctx context.Context, filter postgres.DelegationFilter) ([]*models.DelegationTask, error)
}

// LeaveSweeper clears expired leave windows, satisfied by employee.Service.
type LeaveSweeper interface {
	ClearExpiredLeaves(ctx context.Context, day time.Time) (int, error)
}

// LogPruner trims old delivery records, satisfied by
// postgres.NotificationLogRepository.
type LogPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier dispatches a message to an employee, satisfied by
// notification.Service.
type Notifier interface {
	NotifyEmployee(ctx context.Context, tenant *models.Tenant, emp *models.Employee, msg channels.Message, taskID *uuid.UUID) error
}

// Scheduler owns the cron instance and the job implementations.
type Scheduler struct {
	config *Config

	tenants     TenantLister
	employees   EmployeeLister
	instances   InstanceLister
	delegations DelegationLister
	leaves      LeaveSweeper
	logPruner   LogPruner
	notifier    Notifier

	cron   *cron.Cron
	logger *logger.Logger

	running      bool
	mu           sync.Mutex
	lifecycleCtx context.Context

	now func() time.Time
}

// New creates the scheduler. Jobs whose dependencies are nil are skipped at
// registration time.
func New(
	config *Config,
	tenants TenantLister,
	employees EmployeeLister,
	instances InstanceLister,
	delegations DelegationLister,
	leaves LeaveSweeper,
	logPruner LogPruner,
	notifier Notifier,
	log *logger.Logger,
) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Scheduler{
		config:      config,
		tenants:     tenants,
		employees:   employees,
		instances:   instances,
		delegations: delegations,
		leaves:      leaves,
		logPruner:   logPruner,
		notifier:    notifier,
		cron: cron.New(
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		logger: log.Named("scheduler"),
		now:    time.Now,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New(errors.CodeValidation, "scheduler already running")
	}
	s.lifecycleCtx = ctx

	if s.notifier != nil && s.instances != nil {
		if _, err := s.cron.AddFunc(s.config.ReminderSchedule, s.jobFunc("reminders", s.runReminders)); err != nil {
			return errors.Wrap(err, errors.CodeValidation, "invalid reminder schedule")
		}
	}
	if s.leaves != nil {
		if _, err := s.cron.AddFunc(s.config.LeaveSweepSchedule, s.jobFunc("leave_sweep", s.runLeaveSweep)); err != nil {
			return errors.Wrap(err, errors.CodeValidation, "invalid leave sweep schedule")
		}
	}
	if s.logPruner != nil {
		if _, err := s.cron.AddFunc(s.config.LogPruneSchedule, s.jobFunc("log_prune", s.runLogPrune)); err != nil {
			return errors.Wrap(err, errors.CodeValidation, "invalid log prune schedule")
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started",
		"reminders", s.config.ReminderSchedule,
		"leave_sweep", s.config.LeaveSweepSchedule,
		"log_prune", s.config.LogPruneSchedule,
	)
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("scheduler shutdown timeout")
	}
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// jobFunc wraps a job with a timeout context derived from the lifecycle
// context, so jobs are cancelled during shutdown.
func (s *Scheduler) jobFunc(name string, job func(ctx context.Context) error) func() {
	return func() {
		parent := s.lifecycleCtx
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithTimeout(parent, s.config.JobTimeout)
		defer cancel()

		started := s.now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job complete", "job", name, "elapsed", s.now().Sub(started))
	}
}

// ============ Jobs ============

// runReminders notifies each doer about their due and backlog checklist
// occurrences and warns about delegation deadlines inside the lookahead
// window. Tenants fail independently.
func (s *Scheduler) runReminders(ctx context.Context) error {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		if err := s.remindTenant(ctx, tenant); err != nil {
			s.logger.Warn("tenant reminders failed",
				"tenant_id", tenant.ID,
				"error", err,
			)
		}
	}
	return nil
}

func (s *Scheduler) remindTenant(ctx context.Context, tenant *models.Tenant) error {
	staff, err := s.employees.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*models.Employee, len(staff))
	for _, e := range staff {
		byID[e.ID] = e
	}

	instances, err := s.instances.ListInstances(ctx, tenant.ID, nil)
	if err != nil {
		return err
	}

	perDoer := make(map[uuid.UUID][]models.ChecklistInstance)
	for _, inst := range instances {
		perDoer[inst.DoerID] = append(perDoer[inst.DoerID], inst)
	}

	deadlines, err := s.nearingDeadlines(ctx, tenant.ID)
	if err != nil {
		s.logger.Warn("deadline lookup failed", "tenant_id", tenant.ID, "error", err)
	}
	for _, task := range deadlines {
		s.notifyDeadline(ctx, tenant, byID[task.DoerID], task)
	}

	for doerID, list := range perDoer {
		emp, ok := byID[doerID]
		if !ok {
			continue
		}
		msg := reminderMessage(list)
		if err := s.notifier.NotifyEmployee(ctx, tenant, emp, msg, nil); err != nil {
			s.logger.Warn("reminder delivery failed",
				"tenant_id", tenant.ID,
				"employee_id", doerID,
				"error", err,
			)
		}
	}
	return nil
}

// nearingDeadlines returns open delegation tasks due within the lookahead
// window, overdue ones included.
func (s *Scheduler) nearingDeadlines(ctx context.Context, tenantID uuid.UUID) ([]*models.DelegationTask, error) {
	if s.delegations == nil {
		return nil, nil
	}

	horizon := s.now().UTC().Add(s.config.DeadlineLookahead)

	var out []*models.DelegationTask
	for _, status := range []models.DelegationStatus{models.DelegationPending, models.DelegationAccepted} {
		tasks, err := s.delegations.List(ctx, postgres.DelegationFilter{
			TenantID:  tenantID,
			Status:    status,
			DueBefore: horizon,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tasks...)
	}
	return out, nil
}

func (s *Scheduler) notifyDeadline(ctx context.Context, tenant *models.Tenant, emp *models.Employee, task *models.DelegationTask) {
	if emp == nil {
		return
	}

	deadline := task.Deadline
	if task.RevisedDeadline != nil {
		deadline = *task.RevisedDeadline
	}

	verb := "is due"
	if deadline.Before(s.now().UTC()) {
		verb = "was due"
	}
	msg := channels.Message{
		Subject: "Deadline approaching: " + task.Title,
		Body:    fmt.Sprintf("%q %s %s.", task.Title, verb, deadline.Format("Mon, 02 Jan 2006 15:04 MST")),
		Type:    channels.TypeDeadlineNearing,
	}
	taskID := task.ID
	if err := s.notifier.NotifyEmployee(ctx, tenant, emp, msg, &taskID); err != nil {
		s.logger.Warn("deadline warning delivery failed",
			"tenant_id", tenant.ID,
			"task_id", task.ID,
			"error", err,
		)
	}
}

// reminderMessage builds the per-doer digest, backlog first.
func reminderMessage(instances []models.ChecklistInstance) channels.Message {
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Backlog != instances[j].Backlog {
			return instances[i].Backlog
		}
		return instances[i].InstanceDate.Before(instances[j].InstanceDate)
	})

	var backlog, due int
	var b strings.Builder
	for _, inst := range instances {
		line := fmt.Sprintf("- %s (%s)", inst.Name, inst.InstanceDate.Format("02 Jan"))
		if inst.Backlog {
			line += " [backlog]"
			backlog++
		} else {
			due++
		}
		if inst.BuddyTask {
			line += " covering " + inst.OriginalOwnerName
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	subject := fmt.Sprintf("%d checklist item(s) pending", len(instances))
	msgType := channels.TypeChecklistDue
	if backlog > 0 {
		subject = fmt.Sprintf("%d pending, %d in backlog", due, backlog)
		msgType = channels.TypeChecklistBacklog
	}

	return channels.Message{
		Subject: subject,
		Body:    b.String(),
		Type:    msgType,
	}
}

// runLeaveSweep clears leave windows that ended before today.
func (s *Scheduler) runLeaveSweep(ctx context.Context) error {
	cleared, err := s.leaves.ClearExpiredLeaves(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	if cleared > 0 {
		s.logger.Info("expired leaves cleared", "count", cleared)
	}
	return nil
}

// runLogPrune trims notification deliveries older than the retention window.
func (s *Scheduler) runLogPrune(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.config.LogRetention)
	removed, err := s.logPruner.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("notification log pruned", "removed", removed)
	}
	return nil
}
