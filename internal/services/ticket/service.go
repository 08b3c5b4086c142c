// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package ticket handles tenant support requests.
package ticket

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lrbcloud/taskloop/internal/models"
	apperrors "github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
)

// TicketStore is the persistence surface, satisfied by
// postgres.TicketRepository.
type TicketStore interface {
	Create(ctx context.Context, t *models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	List(ctx context.Context, filter postgres.TicketFilter) ([]*models.Ticket, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TicketStatus) error
}

// Service handles support tickets.
type Service struct {
	ticketRepo TicketStore
	logger     *logger.Logger
}

// NewService creates a ticket service.
func NewService(ticketRepo TicketStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{ticketRepo: ticketRepo, logger: log.Named("ticket")}
}

// Open raises a new support ticket.
func (s *Service) Open(ctx context.Context, tenantID, raisedBy uuid.UUID, subject, body string) (*models.Ticket, error) {
	if subject == "" {
		return nil, apperrors.InvalidInput("ticket subject is required")
	}

	now := time.Now().UTC()
	ticket := &models.Ticket{
		ID:        uuid.New(),
		TenantID:  tenantID,
		RaisedBy:  raisedBy,
		Subject:   subject,
		Body:      body,
		Status:    models.TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Info("ticket opened", "ticket_id", ticket.ID, "tenant_id", tenantID)
	return ticket, nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	return s.ticketRepo.GetByID(ctx, id)
}

// List returns tickets matching the filter.
func (s *Service) List(ctx context.Context, filter postgres.TicketFilter) ([]*models.Ticket, error) {
	return s.ticketRepo.List(ctx, filter)
}

// Close marks a ticket closed.
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ticket.Status == models.TicketClosed {
		return apperrors.Conflict("ticket is already closed")
	}
	return s.ticketRepo.UpdateStatus(ctx, id, models.TicketClosed)
}

// Reopen marks a closed ticket open again.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) error {
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ticket.Status == models.TicketOpen {
		return apperrors.Conflict("ticket is already open")
	}
	return s.ticketRepo.UpdateStatus(ctx, id, models.TicketOpen)
}
