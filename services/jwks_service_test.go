package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authz/domain"
)

func sigKey(kid, alg string, certs ...string) domain.JSONWebKey {
	return domain.JSONWebKey{
		Kid:          kid,
		Kty:          "RSA",
		Use:          domain.KeyUseSignature,
		Alg:          alg,
		KeyOps:       []string{domain.KeyOpSign, domain.KeyOpVerify},
		Certificates: certs,
	}
}

func TestKeyResolver_GetSigningKey(t *testing.T) {
	r := NewKeyResolver(
		sigKey("k1", "RS256"),
		sigKey("k2", "ES256"),
		domain.JSONWebKey{Kid: "e1", Kty: "RSA", Use: domain.KeyUseEncryption, Alg: "RSA-OAEP"},
	)

	key, err := r.GetSigningKey("ES256")
	require.NoError(t, err)
	assert.Equal(t, "k2", key.Kid)

	_, err = r.GetSigningKey("PS512")
	assert.ErrorIs(t, err, ErrNoMatchingKey)

	// Encryption keys never satisfy a signing lookup.
	enc, err := r.GetEncryptionKey("RSA-OAEP")
	require.NoError(t, err)
	assert.Equal(t, "e1", enc.Kid)
}

func TestKeyResolver_PrefersCertifiedKeys(t *testing.T) {
	r := NewKeyResolver(
		sigKey("bare", "RS256"),
		sigKey("certified", "RS256", "MIIC...chain"),
	)

	key, err := r.GetSigningKey("RS256")
	require.NoError(t, err)
	assert.Equal(t, "certified", key.Kid)
}

func TestKeyResolver_DefaultSigningKeyIsLowestKid(t *testing.T) {
	r := NewKeyResolver(
		sigKey("zz", "RS256"),
		sigKey("aa", "RS384"),
		sigKey("mm", "RS512"),
	)

	key, err := r.GetDefaultSigningKey()
	require.NoError(t, err)
	assert.Equal(t, "aa", key.Kid)
}

func TestKeyResolver_Rotate(t *testing.T) {
	r := NewKeyResolver(
		sigKey("k1", "RS256"),
		sigKey("k2", "ES256"),
	)

	r.Rotate([]domain.JSONWebKey{sigKey("k1", "RS384")})

	key, err := r.GetSigningKey("RS384")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.Kid)

	// The old k1 material is gone, k2 survives.
	_, err = r.GetSigningKey("RS256")
	assert.ErrorIs(t, err, ErrNoMatchingKey)
	key, err = r.GetSigningKey("ES256")
	require.NoError(t, err)
	assert.Equal(t, "k2", key.Kid)
}

func TestKeyResolver_GenerateSigningKey(t *testing.T) {
	r := NewKeyResolver()

	key, err := r.GenerateSigningKey("RS256")
	require.NoError(t, err)
	assert.NotEmpty(t, key.Kid)
	assert.NotNil(t, key.PrivateKey)
	assert.Equal(t, domain.KeyUseSignature, key.Use)

	resolved, err := r.GetSigningKey("RS256")
	require.NoError(t, err)
	assert.Equal(t, key.Kid, resolved.Kid)
}

func TestKeyResolver_JWKSStripsPrivateMaterial(t *testing.T) {
	r := NewKeyResolver()
	_, err := r.GenerateSigningKey("RS256")
	require.NoError(t, err)

	set := r.JWKS()
	require.Len(t, set.Keys, 1)
	assert.Nil(t, set.Keys[0].PrivateKey)
	assert.NotEmpty(t, set.Keys[0].N)
	assert.NotEmpty(t, set.Keys[0].E)
}

func TestKeyResolver_NoKeys(t *testing.T) {
	r := NewKeyResolver()

	_, err := r.GetDefaultSigningKey()
	assert.ErrorIs(t, err, ErrNoMatchingKey)
}
