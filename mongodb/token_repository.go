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

// TokenRepository persists granted tokens. Refresh rotation is a conditional
// delete-then-insert so an already rotated value cannot be redeemed again.
type TokenRepository struct {
	tokens *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		tokens: db.Collection(TokensCollection),
	}
}

func (r *TokenRepository) StoreToken(ctx context.Context, token *domain.GrantedToken) error {
	_, err := r.tokens.InsertOne(ctx, token)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("token %s already exists: %w", token.ID, err)
		}
		log.Error().Err(err).Str("token_id", token.ID).Msg("Error storing granted token")
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetAccessToken(ctx context.Context, accessToken string) (*domain.GrantedToken, error) {
	return r.findOne(ctx, bson.M{"access_token": accessToken})
}

func (r *TokenRepository) GetRefreshToken(ctx context.Context, refreshToken string) (*domain.GrantedToken, error) {
	return r.findOne(ctx, bson.M{"refresh_token": refreshToken})
}

// GetByFingerprint finds a still-valid token for (clientID, scope) whose
// stored payload fingerprints contain every candidate claim. The payload
// subset check runs in memory since claim maps are small.
func (r *TokenRepository) GetByFingerprint(ctx context.Context, clientID, scope string, idTokenPayload, userInfoPayload map[string]string) (*domain.GrantedToken, error) {
	filter := bson.M{
		"client_id":  clientID,
		"scope":      scope,
		"is_revoked": false,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}

	cursor, err := r.tokens.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by fingerprint: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var token domain.GrantedToken
		if err := cursor.Decode(&token); err != nil {
			return nil, fmt.Errorf("failed to decode token: %w", err)
		}
		if token.MatchesPayloads(idTokenPayload, userInfoPayload) {
			return &token, nil
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}
	return nil, serrors.ErrNotFound
}

func (r *TokenRepository) RevokeAccessToken(ctx context.Context, accessToken string) error {
	return r.revoke(ctx, bson.M{"access_token": accessToken})
}

// RevokeRefreshToken revokes the matching token and walks the ParentTokenID
// chain downward so every descendant minted from this refresh token dies with
// it.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	token, err := r.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := r.revoke(ctx, bson.M{"_id": token.ID}); err != nil {
		return err
	}

	parentIDs := []string{token.ID}
	for len(parentIDs) > 0 {
		cursor, err := r.tokens.Find(ctx, bson.M{
			"parent_token_id": bson.M{"$in": parentIDs},
			"is_revoked":      false,
		})
		if err != nil {
			return fmt.Errorf("failed to load descendant tokens: %w", err)
		}

		var nextIDs []string
		for cursor.Next(ctx) {
			var child domain.GrantedToken
			if err := cursor.Decode(&child); err != nil {
				cursor.Close(ctx)
				return fmt.Errorf("failed to decode descendant token: %w", err)
			}
			nextIDs = append(nextIDs, child.ID)
		}
		if err := cursor.Err(); err != nil {
			cursor.Close(ctx)
			return fmt.Errorf("failed to iterate descendant tokens: %w", err)
		}
		cursor.Close(ctx)

		if len(nextIDs) > 0 {
			if _, err := r.tokens.UpdateMany(ctx,
				bson.M{"_id": bson.M{"$in": nextIDs}},
				bson.M{"$set": bson.M{"is_revoked": true}},
			); err != nil {
				return fmt.Errorf("failed to revoke descendant tokens: %w", err)
			}
		}
		parentIDs = nextIDs
	}
	return nil
}

// RotateRefreshToken invalidates the old refresh token value and persists the
// replacement. The conditional update on the still-live old value makes the
// rotation win-once under concurrency.
func (r *TokenRepository) RotateRefreshToken(ctx context.Context, oldRefreshToken string, replacement *domain.GrantedToken) error {
	result, err := r.tokens.UpdateOne(ctx,
		bson.M{"refresh_token": oldRefreshToken, "is_revoked": false},
		bson.M{"$set": bson.M{"is_revoked": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate old refresh token: %w", err)
	}
	if result.ModifiedCount == 0 {
		return serrors.ErrAlreadyConsumed
	}
	return r.StoreToken(ctx, replacement)
}

func (r *TokenRepository) findOne(ctx context.Context, filter bson.M) (*domain.GrantedToken, error) {
	var token domain.GrantedToken
	err := r.tokens.FindOne(ctx, filter).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepository) revoke(ctx context.Context, filter bson.M) error {
	result, err := r.tokens.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}
