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

// DeviceCodeRepository persists RFC 8628 device authorization state.
type DeviceCodeRepository struct {
	deviceAuths *mongo.Collection
}

func NewDeviceCodeRepository(db *mongo.Database) *DeviceCodeRepository {
	return &DeviceCodeRepository{
		deviceAuths: db.Collection(DeviceAuthCollection),
	}
}

func (r *DeviceCodeRepository) SaveDeviceAuth(ctx context.Context, auth *domain.DeviceAuthorization) error {
	_, err := r.deviceAuths.InsertOne(ctx, auth)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("device code already exists: %w", err)
		}
		return fmt.Errorf("failed to save device authorization: %w", err)
	}
	return nil
}

func (r *DeviceCodeRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceAuthorization, error) {
	return r.findOne(ctx, bson.M{"_id": deviceCode})
}

func (r *DeviceCodeRepository) GetByUserCode(ctx context.Context, userCode string) (*domain.DeviceAuthorization, error) {
	return r.findOne(ctx, bson.M{"user_code": userCode})
}

// Approve settles a pending request. The conditional filter keeps an already
// denied or consumed entry from flipping to authorized.
func (r *DeviceCodeRepository) Approve(ctx context.Context, userCode, userID string) error {
	result, err := r.deviceAuths.UpdateOne(ctx,
		bson.M{"user_code": userCode, "status": domain.DeviceCodeStatusPending},
		bson.M{"$set": bson.M{
			"status":  domain.DeviceCodeStatusAuthorized,
			"user_id": userID,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to approve device authorization: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *DeviceCodeRepository) Deny(ctx context.Context, userCode string) error {
	result, err := r.deviceAuths.UpdateOne(ctx,
		bson.M{"user_code": userCode, "status": domain.DeviceCodeStatusPending},
		bson.M{"$set": bson.M{"status": domain.DeviceCodeStatusDenied}},
	)
	if err != nil {
		return fmt.Errorf("failed to deny device authorization: %w", err)
	}
	if result.MatchedCount == 0 {
		return serrors.ErrNotFound
	}
	return nil
}

func (r *DeviceCodeRepository) UpdateLastPolledAt(ctx context.Context, deviceCode string, at time.Time) error {
	_, err := r.deviceAuths.UpdateOne(ctx,
		bson.M{"_id": deviceCode},
		bson.M{"$set": bson.M{"last_polled_at": at}},
	)
	return err
}

// ConsumeApproved removes an approved entry and returns it; a device code is
// redeemed at most once.
func (r *DeviceCodeRepository) ConsumeApproved(ctx context.Context, deviceCode string) (*domain.DeviceAuthorization, error) {
	var auth domain.DeviceAuthorization
	err := r.deviceAuths.FindOneAndDelete(ctx,
		bson.M{"_id": deviceCode, "status": domain.DeviceCodeStatusAuthorized},
	).Decode(&auth)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume device authorization: %w", err)
	}
	return &auth, nil
}

func (r *DeviceCodeRepository) findOne(ctx context.Context, filter bson.M) (*domain.DeviceAuthorization, error) {
	var auth domain.DeviceAuthorization
	err := r.deviceAuths.FindOne(ctx, filter).Decode(&auth)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve device authorization: %w", err)
	}
	return &auth, nil
}
