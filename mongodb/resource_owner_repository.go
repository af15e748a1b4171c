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

// ResourceOwnerRepository authenticates and resolves end users. Lookups
// compare hex-encoded SHA-256 password hashes, never cleartext.
type ResourceOwnerRepository struct {
	owners *mongo.Collection
}

func NewResourceOwnerRepository(db *mongo.Database) *ResourceOwnerRepository {
	return &ResourceOwnerRepository{
		owners: db.Collection(ResourceOwnersCollection),
	}
}

func (r *ResourceOwnerRepository) GetByCredentials(ctx context.Context, login, passwordHash string) (*domain.ResourceOwner, error) {
	var owner domain.ResourceOwner
	err := r.owners.FindOne(ctx, bson.M{
		"login":         login,
		"password_hash": passwordHash,
	}).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to authenticate resource owner: %w", err)
	}
	return &owner, nil
}

func (r *ResourceOwnerRepository) GetByID(ctx context.Context, id string) (*domain.ResourceOwner, error) {
	var owner domain.ResourceOwner
	err := r.owners.FindOne(ctx, bson.M{"_id": id}).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve resource owner: %w", err)
	}
	return &owner, nil
}

func (r *ResourceOwnerRepository) Create(ctx context.Context, owner *domain.ResourceOwner) error {
	owner.CreatedAt = time.Now().UTC()
	owner.UpdatedAt = owner.CreatedAt

	_, err := r.owners.InsertOne(ctx, owner)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("resource owner %s already exists: %w", owner.Login, err)
		}
		return fmt.Errorf("failed to create resource owner: %w", err)
	}
	return nil
}
