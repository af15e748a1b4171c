package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// AuthCodeRepository persists authorization codes keyed by code value.
type AuthCodeRepository struct {
	authCodes *mongo.Collection
}

func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{
		authCodes: db.Collection(CodesCollection),
	}
}

func (r *AuthCodeRepository) SaveAuthCode(ctx context.Context, authCode *domain.AuthCode) error {
	if authCode.Code == "" {
		return errors.New("auth code value cannot be empty")
	}

	authCode.CreatedAt = time.Now().UTC()
	_, err := r.authCodes.InsertOne(ctx, authCode)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("authorization code %s already exists: %w", authCode.Code, err)
		}
		log.Error().Err(err).Msg("Error saving authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	log.Debug().Str("client_id", authCode.ClientID).Msg("Authorization code saved")
	return nil
}

// ConsumeAuthCode loads and deletes the code in one round trip. Of two racing
// consumers only one gets the document, the other observes ErrNotFound.
func (r *AuthCodeRepository) ConsumeAuthCode(ctx context.Context, codeValue string) (*domain.AuthCode, error) {
	var authCode domain.AuthCode
	err := r.authCodes.FindOneAndDelete(ctx, bson.M{"_id": codeValue}).Decode(&authCode)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		log.Error().Err(err).Msg("Error consuming authorization code")
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return &authCode, nil
}

// DeleteExpired removes codes whose lifetime elapsed. Intended for periodic
// housekeeping.
func (r *AuthCodeRepository) DeleteExpired(ctx context.Context) error {
	_, err := r.authCodes.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	return err
}
