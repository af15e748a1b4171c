package cache

import (
	"context"
	"time"
)

// TokenEntry is the cached projection of a granted token, keyed by the hashed
// access token value. It holds just enough for fast validation without a
// round trip to the primary store.
type TokenEntry struct {
	ID         string    `redis:"id"`
	TokenValue string    `redis:"tokenValue"`
	ClientID   string    `redis:"clientId"`
	Subject    string    `redis:"subject"`
	Scope      string    `redis:"scope"`
	ExpiresAt  time.Time `redis:"expiresAt"`
	IsRevoked  bool      `redis:"isRevoked"`
	LastUsedAt time.Time `redis:"lastUsedAt"`
}

// TokenStore is the lookup cache in front of the token repository.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type TokenStore interface {
	Set(ctx context.Context, token *TokenEntry) error
	Get(ctx context.Context, token string) (*TokenEntry, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}
