package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	"go.pilab.hu/authz/internal/metrics"
	applog "go.pilab.hu/authz/log"
)

// PermissionService creates permission tickets for resource servers and sweeps
// expired ones in the background.
type PermissionService struct {
	tickets      domain.TicketRepository
	resourceSets domain.ResourceSetRepository
	logger       applog.Logger

	ticketTTL     time.Duration
	sweepInterval time.Duration
}

// NewPermissionService creates a PermissionService.
func NewPermissionService(
	tickets domain.TicketRepository,
	resourceSets domain.ResourceSetRepository,
	ticketTTL, sweepInterval time.Duration,
	logger applog.Logger,
) *PermissionService {
	return &PermissionService{
		tickets:       tickets,
		resourceSets:  resourceSets,
		logger:        logger,
		ticketTTL:     ticketTTL,
		sweepInterval: sweepInterval,
	}
}

// CreateTicket registers one pending permission request. Every referenced
// resource set must exist and carry the requested scopes.
func (s *PermissionService) CreateTicket(ctx context.Context, lines []domain.TicketLine) (*domain.Ticket, error) {
	if len(lines) == 0 {
		return nil, serrors.NewMissingParameter("resource_set_id")
	}

	for _, line := range lines {
		if line.ResourceSetID == "" {
			return nil, serrors.NewMissingParameter("resource_set_id")
		}
		if len(line.Scopes) == 0 {
			return nil, serrors.NewMissingParameter("scopes")
		}
		rs, err := s.resourceSets.GetResourceSet(ctx, line.ResourceSetID)
		if err != nil {
			if errors.Is(err, serrors.ErrNotFound) {
				return nil, serrors.NewInvalidRequest("the resource set is unknown")
			}
			return nil, err
		}
		if !rs.HasScopes(line.Scopes) {
			return nil, serrors.NewInvalidScope("one or more scopes are not registered on the resource set")
		}
	}

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		Lines:     lines,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ticketTTL),
	}
	if err := s.tickets.SaveTicket(ctx, ticket); err != nil {
		return nil, err
	}
	metrics.TicketsCreatedTotal.Inc()
	return ticket, nil
}

// StartSweeper launches the periodic deletion of expired tickets. It returns
// when ctx is cancelled.
func (s *PermissionService) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.tickets.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Error(ctx, "ticket sweep failed", err)
				continue
			}
			if swept > 0 {
				metrics.TicketsSweptTotal.Add(float64(swept))
				s.logger.Debug(ctx, "swept expired tickets", map[string]any{"count": swept})
			}
		}
	}
}
