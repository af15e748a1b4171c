package services

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"go.pilab.hu/authz/domain"
)

// Key resolver errors.
var (
	ErrNoMatchingKey = errors.New("no key matches the requested use and algorithm")
)

// KeyResolver selects signing and encryption keys from the server JWK set.
// Rotation replaces the whole set under one lock, so concurrent readers never
// observe a partially rotated set.
type KeyResolver struct {
	mu   sync.RWMutex
	keys []domain.JSONWebKey
}

// NewKeyResolver creates a resolver over the given initial key set.
func NewKeyResolver(keys ...domain.JSONWebKey) *KeyResolver {
	r := &KeyResolver{}
	r.keys = append(r.keys, keys...)
	return r
}

// GenerateSigningKey creates a fresh RSA signing key, adds it to the set and
// returns it.
func (r *KeyResolver) GenerateSigningKey(alg string) (*domain.JSONWebKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	key := domain.JSONWebKey{
		Kid:        uuid.NewString(),
		Kty:        "RSA",
		Use:        domain.KeyUseSignature,
		Alg:        alg,
		KeyOps:     []string{domain.KeyOpSign, domain.KeyOpVerify},
		PrivateKey: priv,
	}
	r.Add(key)
	return &key, nil
}

// Add appends a single key to the set.
func (r *KeyResolver) Add(key domain.JSONWebKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

// Rotate atomically replaces keys by id: every key whose kid appears in
// newSet is removed first, then the new keys are inserted. Keys absent from
// newSet survive, which allows rolling part of the set without downtime.
func (r *KeyResolver) Rotate(newSet []domain.JSONWebKey) {
	replaced := make(map[string]struct{}, len(newSet))
	for _, k := range newSet {
		replaced[k.Kid] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.keys[:0]
	for _, k := range r.keys {
		if _, ok := replaced[k.Kid]; !ok {
			kept = append(kept, k)
		}
	}
	r.keys = append(kept, newSet...)
}

// GetSigningKey returns a signature key for the given algorithm. When alg is
// empty any signature key qualifies. Candidates carrying an X.509 chain win
// over bare keys, so verifiers can pin the certificate.
func (r *KeyResolver) GetSigningKey(alg string) (*domain.JSONWebKey, error) {
	return r.pick(domain.KeyUseSignature, alg, domain.KeyOpSign, domain.KeyOpVerify)
}

// GetEncryptionKey returns an encryption key for the given algorithm.
func (r *KeyResolver) GetEncryptionKey(alg string) (*domain.JSONWebKey, error) {
	return r.pick(domain.KeyUseEncryption, alg, domain.KeyOpEncrypt, domain.KeyOpDecrypt)
}

// GetDefaultSigningKey returns the signature key with the lowest kid.
func (r *KeyResolver) GetDefaultSigningKey() (*domain.JSONWebKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []domain.JSONWebKey
	for _, k := range r.keys {
		if k.Use == domain.KeyUseSignature {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatchingKey
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Kid < candidates[j].Kid })
	key := candidates[0]
	return &key, nil
}

func (r *KeyResolver) pick(use, alg string, ops ...string) (*domain.JSONWebKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *domain.JSONWebKey
	for i := range r.keys {
		k := r.keys[i]
		if k.Use != use {
			continue
		}
		if alg != "" && k.Alg != alg {
			continue
		}
		if !hasAnyOp(&k, ops) {
			continue
		}
		if len(k.Certificates) > 0 {
			key := k
			return &key, nil
		}
		if fallback == nil {
			key := k
			fallback = &key
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoMatchingKey
}

func hasAnyOp(k *domain.JSONWebKey, ops []string) bool {
	for _, op := range ops {
		if k.HasOp(op) {
			return true
		}
	}
	return false
}

// keyByID looks up a key by kid regardless of use.
func (r *KeyResolver) keyByID(kid string) (*domain.JSONWebKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.keys {
		if r.keys[i].Kid == kid {
			key := r.keys[i]
			return &key, nil
		}
	}
	return nil, ErrNoMatchingKey
}

// JWKS renders the public JWKS document.
func (r *KeyResolver) JWKS() domain.JSONWebKeySet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := domain.JSONWebKeySet{Keys: make([]domain.JSONWebKey, 0, len(r.keys))}
	for i := range r.keys {
		set.Keys = append(set.Keys, r.keys[i].Public())
	}
	return set
}
