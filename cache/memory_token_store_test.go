package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "go.pilab.hu/authz/errors"
)

func newTestEntry(value string, ttl time.Duration) *TokenEntry {
	return &TokenEntry{
		ID:         "id-" + value,
		TokenValue: value,
		ClientID:   "client-1",
		Subject:    "user-1",
		Scope:      "read",
		ExpiresAt:  time.Now().UTC().Add(ttl),
	}
}

func TestMemoryTokenStore(t *testing.T) {
	store := NewMemoryTokenStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, newTestEntry("tok-1", time.Minute)))

	entry, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "id-tok-1", entry.ID)
	assert.Equal(t, "user-1", entry.Subject)
	assert.False(t, entry.LastUsedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "tok-1"))
	_, err = store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestMemoryTokenStore_ExpiredEntryNotStored(t *testing.T) {
	store := NewMemoryTokenStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, newTestEntry("tok-1", -time.Minute)))

	_, err := store.Get(ctx, "tok-1")
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	assert.Equal(t, 0, store.Count(ctx))
}

func TestMemoryTokenStore_Clear(t *testing.T) {
	store := NewMemoryTokenStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, newTestEntry("tok-1", time.Minute)))
	require.NoError(t, store.Set(ctx, newTestEntry("tok-2", time.Minute)))
	assert.Equal(t, 2, store.Count(ctx))

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count(ctx))
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("anything"), 64)
}
