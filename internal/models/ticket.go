// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is a support ticket's state.
type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// ValidTicketStatuses contains all ticket states.
var ValidTicketStatuses = map[TicketStatus]bool{
	TicketOpen:   true,
	TicketClosed: true,
}

// Ticket is a tenant support request.
type Ticket struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	TenantID  uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	RaisedBy  uuid.UUID    `json:"raised_by" db:"raised_by"`
	Subject   string       `json:"subject" db:"subject"`
	Body      string       `json:"body,omitempty" db:"body"`
	Status    TicketStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// NotificationDelivery logs one outbound notification attempt.
type NotificationDelivery struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TenantID  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Channel   string     `json:"channel" db:"channel"`
	Recipient string     `json:"recipient" db:"recipient"`
	Subject   string     `json:"subject,omitempty" db:"subject"`
	Success   bool       `json:"success" db:"success"`
	Error     string     `json:"error,omitempty" db:"error"`
	TaskID    *uuid.UUID `json:"task_id,omitempty" db:"task_id"`
	SentAt    time.Time  `json:"sent_at" db:"sent_at"`
}
