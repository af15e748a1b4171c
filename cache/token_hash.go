package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken derives the cache key from a token value. Hashing keeps long JWT
// strings out of the key space and off the wire in cache backends.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
