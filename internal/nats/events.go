// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event subjects. The WebSocket forwarder subscribes to SubjectAll and
// relays everything to connected tenant dashboards.
const (
	SubjectChecklistCompleted = "taskloop.checklist.completed"
	SubjectDelegationStatus   = "taskloop.delegation.status"
	SubjectBadgeEarned        = "taskloop.badge.earned"

	SubjectAll = "taskloop.>"
)

// ChecklistCompletedEvent is published when an occurrence is resolved.
type ChecklistCompletedEvent struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	TaskID       uuid.UUID `json:"task_id"`
	TaskName     string    `json:"task_name"`
	DoerID       uuid.UUID `json:"doer_id"`
	InstanceDate time.Time `json:"instance_date"`
	Backlog      bool      `json:"backlog"`
	CompletedAt  time.Time `json:"completed_at"`
}

// DelegationStatusEvent is published on every workflow transition.
type DelegationStatusEvent struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	TaskID    uuid.UUID `json:"task_id"`
	Title     string    `json:"title"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   uuid.UUID `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BadgeEarnedEvent is published when the scoring engine unlocks a badge.
type BadgeEarnedEvent struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	EmployeeID  uuid.UUID `json:"employee_id"`
	BadgeID     uuid.UUID `json:"badge_id"`
	BadgeName   string    `json:"badge_name"`
	TotalPoints int       `json:"total_points"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// EventPublisher publishes domain events. Publishing is best-effort: a dead
// broker must not fail the request that produced the event, so callers log
// returned errors and continue.
type EventPublisher struct {
	client *Client
	logger *zap.Logger
}

// NewEventPublisher creates an event publisher.
func NewEventPublisher(client *Client, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, logger: logger.Named("events")}
}

// ChecklistCompleted publishes a checklist completion event.
func (p *EventPublisher) ChecklistCompleted(ev ChecklistCompletedEvent) error {
	return p.publish(SubjectChecklistCompleted, ev)
}

// DelegationStatus publishes a delegation workflow transition event.
func (p *EventPublisher) DelegationStatus(ev DelegationStatusEvent) error {
	return p.publish(SubjectDelegationStatus, ev)
}

// BadgeEarned publishes a badge unlock event.
func (p *EventPublisher) BadgeEarned(ev BadgeEarnedEvent) error {
	return p.publish(SubjectBadgeEarned, ev)
}

func (p *EventPublisher) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// SubscribeAll subscribes to every taskloop event subject.
func (c *Client) SubscribeAll(handler nats.MsgHandler) (*nats.Subscription, error) {
	return c.Subscribe(SubjectAll, handler)
}
