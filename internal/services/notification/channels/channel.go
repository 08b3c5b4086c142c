// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package channels provides notification delivery channels.
package channels

import (
	"context"
	"time"
)

// Channel delivers messages to a single recipient. The recipient format
// depends on the channel: an email address, a phone number in international
// format, and so on.
type Channel interface {
	// Name returns the unique identifier for this channel type.
	Name() string

	// Send delivers a message to one recipient.
	Send(ctx context.Context, recipient string, msg Message) error

	// IsConfigured returns true if the channel has valid configuration.
	IsConfigured() bool
}

// Message is a notification ready for delivery.
type Message struct {
	// Subject is the notification title. Channels without a subject line
	// prepend it to the body.
	Subject string

	// Body is the main content, plain text.
	Body string

	// Type categorizes the notification.
	Type NotificationType

	// Timestamp when the notification was created.
	Timestamp time.Time

	// Data contains additional structured fields for rich channels.
	Data map[string]interface{}
}

// NotificationType categorizes notifications by their source.
type NotificationType string

const (
	// Checklist notifications
	TypeChecklistDue     NotificationType = "checklist_due"
	TypeChecklistBacklog NotificationType = "checklist_backlog"
	TypeBuddyCoverage    NotificationType = "buddy_coverage"

	// Delegation notifications
	TypeTaskAssigned    NotificationType = "task_assigned"
	TypeTaskStatus      NotificationType = "task_status"
	TypeDeadlineNearing NotificationType = "deadline_nearing"

	// Scoring notifications
	TypeBadgeEarned NotificationType = "badge_earned"

	TypeTestMessage NotificationType = "test_message"
)
