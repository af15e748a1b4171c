package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authz/cache"
	serrors "go.pilab.hu/authz/errors"
)

// TokenStore implements cache.TokenStore on Redis. Keys carry the configured
// prefix and expire with the token, so the backend enforces the TTL.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{client: client, prefix: prefix}
}

func (r *TokenStore) key(token string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, cache.HashToken(token))
}

// Set stores the entry under the hashed token key with the token's TTL.
func (r *TokenStore) Set(ctx context.Context, token *cache.TokenEntry) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	key := r.key(token.TokenValue)
	if err := r.client.HSet(ctx, key, token).Err(); err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token expiry in redis: %w", err)
	}
	return nil
}

// Get retrieves the entry for a token value.
func (r *TokenStore) Get(ctx context.Context, token string) (*cache.TokenEntry, error) {
	var entry cache.TokenEntry
	err := r.client.HGetAll(ctx, r.key(token)).Scan(&entry)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, serrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token from redis: %w", err)
	}
	if entry.ID == "" {
		return nil, serrors.ErrNotFound
	}
	return &entry, nil
}

// Delete removes the entry for a token value.
func (r *TokenStore) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.key(token)).Err()
}

// DeleteExpired is a no-op: Redis expires keys on its own.
func (r *TokenStore) DeleteExpired(_ context.Context) error {
	return nil
}

// Clear removes every entry under the store prefix.
func (r *TokenStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, fmt.Sprintf("%s:token:*", r.prefix), 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Count returns the number of entries under the store prefix.
func (r *TokenStore) Count(ctx context.Context) int {
	var n int
	iter := r.client.Scan(ctx, 0, fmt.Sprintf("%s:token:*", r.prefix), 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n
}
