package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates the secondary indexes the repositories rely on. Safe
// to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	tokenIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "access_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "refresh_token", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "refresh_token", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
		{
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "scope", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "parent_token_id", Value: 1}},
		},
	}
	if _, err := db.Collection(TokensCollection).Indexes().CreateMany(ctx, tokenIndexes); err != nil {
		return fmt.Errorf("failed to create token indexes: %w", err)
	}

	deviceIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(DeviceAuthCollection).Indexes().CreateMany(ctx, deviceIndexes); err != nil {
		return fmt.Errorf("failed to create device authorization indexes: %w", err)
	}

	ticketIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}
	if _, err := db.Collection(TicketsCollection).Indexes().CreateMany(ctx, ticketIndexes); err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}

	consentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "subject", Value: 1},
				{Key: "client_id", Value: 1},
				{Key: "resource_set_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(ConsentsCollection).Indexes().CreateMany(ctx, consentIndexes); err != nil {
		return fmt.Errorf("failed to create consent indexes: %w", err)
	}

	ownerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "login", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection(ResourceOwnersCollection).Indexes().CreateMany(ctx, ownerIndexes); err != nil {
		return fmt.Errorf("failed to create resource owner indexes: %w", err)
	}

	return nil
}
