package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// ScopeRepository lists the scopes the server knows about.
type ScopeRepository struct {
	scopes *mongo.Collection
}

func NewScopeRepository(db *mongo.Database) *ScopeRepository {
	return &ScopeRepository{
		scopes: db.Collection(ScopesCollection),
	}
}

func (r *ScopeRepository) GetAll(ctx context.Context) ([]*domain.Scope, error) {
	cursor, err := r.scopes.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load scopes: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*domain.Scope
	for cursor.Next(ctx) {
		var scope domain.Scope
		if err := cursor.Decode(&scope); err != nil {
			return nil, fmt.Errorf("failed to decode scope: %w", err)
		}
		results = append(results, &scope)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scopes: %w", err)
	}
	return results, nil
}

func (r *ScopeRepository) Get(ctx context.Context, name string) (*domain.Scope, error) {
	var scope domain.Scope
	err := r.scopes.FindOne(ctx, bson.M{"_id": name}).Decode(&scope)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve scope: %w", err)
	}
	return &scope, nil
}

func (r *ScopeRepository) Save(ctx context.Context, scope *domain.Scope) error {
	if scope.CreatedAt.IsZero() {
		scope.CreatedAt = time.Now().UTC()
	}
	_, err := r.scopes.ReplaceOne(ctx,
		bson.M{"_id": scope.Name},
		scope,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save scope: %w", err)
	}
	return nil
}
