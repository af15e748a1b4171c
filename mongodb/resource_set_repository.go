package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// ResourceSetRepository persists protected resource registrations.
type ResourceSetRepository struct {
	resourceSets *mongo.Collection
}

func NewResourceSetRepository(db *mongo.Database) *ResourceSetRepository {
	return &ResourceSetRepository{
		resourceSets: db.Collection(ResourceSetsCollection),
	}
}

func (r *ResourceSetRepository) SaveResourceSet(ctx context.Context, rs *domain.ResourceSet) error {
	_, err := r.resourceSets.InsertOne(ctx, rs)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("resource set %s already exists: %w", rs.ID, err)
		}
		return fmt.Errorf("failed to save resource set: %w", err)
	}
	return nil
}

func (r *ResourceSetRepository) GetResourceSet(ctx context.Context, id string) (*domain.ResourceSet, error) {
	var rs domain.ResourceSet
	err := r.resourceSets.FindOne(ctx, bson.M{"_id": id}).Decode(&rs)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve resource set: %w", err)
	}
	return &rs, nil
}

func (r *ResourceSetRepository) UpdateResourceSet(ctx context.Context, rs *domain.ResourceSet) error {
	result, err := r.resourceSets.ReplaceOne(ctx, bson.M{"_id": rs.ID}, rs)
	if err != nil {
		return fmt.Errorf("failed to update resource set: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *ResourceSetRepository) DeleteResourceSet(ctx context.Context, id string) error {
	result, err := r.resourceSets.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete resource set: %w", err)
	}
	if result.DeletedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *ResourceSetRepository) SearchResourceSets(ctx context.Context, filter domain.ResourceSetFilter) ([]*domain.ResourceSet, error) {
	query := bson.M{}
	if filter.Owner != "" {
		query["owner"] = filter.Owner
	}
	if filter.Name != "" {
		query["name"] = filter.Name
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	cursor, err := r.resourceSets.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search resource sets: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*domain.ResourceSet
	for cursor.Next(ctx) {
		var rs domain.ResourceSet
		if err := cursor.Decode(&rs); err != nil {
			return nil, fmt.Errorf("failed to decode resource set: %w", err)
		}
		results = append(results, &rs)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resource sets: %w", err)
	}
	return results, nil
}
