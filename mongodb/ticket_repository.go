package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// TicketRepository persists UMA permission tickets.
type TicketRepository struct {
	tickets *mongo.Collection
}

func NewTicketRepository(db *mongo.Database) *TicketRepository {
	return &TicketRepository{
		tickets: db.Collection(TicketsCollection),
	}
}

func (r *TicketRepository) SaveTicket(ctx context.Context, ticket *domain.Ticket) error {
	_, err := r.tickets.InsertOne(ctx, ticket)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("ticket %s already exists: %w", ticket.ID, err)
		}
		return fmt.Errorf("failed to save ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.tickets.FindOne(ctx, bson.M{"_id": id}).Decode(&ticket)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve ticket: %w", err)
	}
	return &ticket, nil
}

// ConsumeTicket loads and deletes the ticket in one round trip. Only one of
// two racing redemptions receives the document.
func (r *TicketRepository) ConsumeTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.tickets.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&ticket)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume ticket: %w", err)
	}
	return &ticket, nil
}

// DeleteExpired sweeps tickets whose lifetime elapsed and returns the count.
func (r *TicketRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.tickets.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tickets: %w", err)
	}
	return result.DeletedCount, nil
}
