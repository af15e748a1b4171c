package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// ConsentRepository persists resource owner consents. Writes are idempotent
// upserts keyed by (subject, client, resource set).
type ConsentRepository struct {
	consents *mongo.Collection
}

func NewConsentRepository(db *mongo.Database) *ConsentRepository {
	return &ConsentRepository{
		consents: db.Collection(ConsentsCollection),
	}
}

func (r *ConsentRepository) UpsertConsent(ctx context.Context, consent *domain.Consent) error {
	if consent.GrantedAt.IsZero() {
		consent.GrantedAt = time.Now().UTC()
	}

	filter := bson.M{
		"subject":         consent.Subject,
		"client_id":       consent.ClientID,
		"resource_set_id": consent.ResourceSetID,
	}
	update := bson.M{"$set": bson.M{
		"subject":         consent.Subject,
		"client_id":       consent.ClientID,
		"resource_set_id": consent.ResourceSetID,
		"scopes":          consent.Scopes,
		"claims":          consent.Claims,
		"granted_at":      consent.GrantedAt,
		"revoked_at":      time.Time{},
	}}

	_, err := r.consents.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}

func (r *ConsentRepository) GetConsentsForGivenUser(ctx context.Context, subject string) ([]*domain.Consent, error) {
	cursor, err := r.consents.Find(ctx, bson.M{"subject": subject})
	if err != nil {
		return nil, fmt.Errorf("failed to load consents: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*domain.Consent
	for cursor.Next(ctx) {
		var consent domain.Consent
		if err := cursor.Decode(&consent); err != nil {
			return nil, fmt.Errorf("failed to decode consent: %w", err)
		}
		results = append(results, &consent)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consents: %w", err)
	}
	return results, nil
}

func (r *ConsentRepository) RevokeConsent(ctx context.Context, subject, clientID string) error {
	result, err := r.consents.UpdateMany(ctx,
		bson.M{"subject": subject, "client_id": clientID},
		bson.M{"$set": bson.M{"revoked_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}
