package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// ClientRepository persists OAuth2 client registrations. Secrets are stored
// as bcrypt hashes; ValidateClient never compares cleartext.
type ClientRepository struct {
	clients *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		clients: db.Collection(ClientsCollection),
	}
}

func (r *ClientRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	client.CreatedAt = time.Now().UTC()
	client.UpdatedAt = client.CreatedAt

	_, err := r.clients.InsertOne(ctx, client)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("client %s already exists: %w", client.ID, err)
		}
		log.Error().Err(err).Str("client_id", client.ID).Msg("Error creating client")
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := r.clients.FindOne(ctx, bson.M{"_id": clientID}).Decode(&client)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve client: %w", err)
	}
	return &client, nil
}

func (r *ClientRepository) UpdateClient(ctx context.Context, client *domain.Client) error {
	client.UpdatedAt = time.Now().UTC()

	result, err := r.clients.ReplaceOne(ctx, bson.M{"_id": client.ID}, client)
	if err != nil {
		log.Error().Err(err).Str("client_id", client.ID).Msg("Error updating client")
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *ClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	result, err := r.clients.DeleteOne(ctx, bson.M{"_id": clientID})
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.DeletedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

// ValidateClient authenticates the client with its secret.
func (r *ClientRepository) ValidateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, error) {
	client, err := r.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(clientSecret)) != nil {
		return nil, serrors.ErrInvalidCredentials
	}
	return client, nil
}
