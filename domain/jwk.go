package domain

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// Key usage values.
const (
	KeyUseSignature  = "sig"
	KeyUseEncryption = "enc"
)

// Key operations.
const (
	KeyOpSign    = "sign"
	KeyOpVerify  = "verify"
	KeyOpEncrypt = "encrypt"
	KeyOpDecrypt = "decrypt"
)

// JSONWebKey carries one key of the server (or client) key set. The private
// key, when present, never leaves the process; only the public parameters are
// serialized.
//
//nolint:tagliatelle
type JSONWebKey struct {
	Kid          string   `bson:"kid" json:"kid"`
	Kty          string   `bson:"kty" json:"kty"`
	Use          string   `bson:"use,omitempty" json:"use,omitempty"`
	Alg          string   `bson:"alg,omitempty" json:"alg,omitempty"`
	KeyOps       []string `bson:"key_ops,omitempty" json:"key_ops,omitempty"`
	N            string   `bson:"n,omitempty" json:"n,omitempty"`
	E            string   `bson:"e,omitempty" json:"e,omitempty"`
	Certificates []string `bson:"x5c,omitempty" json:"x5c,omitempty"`

	PrivateKey *rsa.PrivateKey `bson:"-" json:"-"`
}

// JSONWebKeySet is a JWKS document.
type JSONWebKeySet struct {
	Keys []JSONWebKey `bson:"keys" json:"keys"`
}

// HasOp reports whether the key advertises the given operation. A key with no
// key_ops entry is unrestricted.
func (k *JSONWebKey) HasOp(op string) bool {
	if len(k.KeyOps) == 0 {
		return true
	}
	for _, o := range k.KeyOps {
		if o == op {
			return true
		}
	}
	return false
}

// RSAPublicKey returns the verification key. Keys restored from a persisted
// JWKS carry only the public parameters, so fall back to decoding N and E
// when there is no private material.
func (k *JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.PrivateKey != nil {
		return &k.PrivateKey.PublicKey, nil
	}
	if k.N == "" || k.E == "" {
		return nil, errors.New("key " + k.Kid + " has no material")
	}
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("cannot decode modulus of key %s: %w", k.Kid, err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("cannot decode exponent of key %s: %w", k.Kid, err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}

// Public returns a copy with the private material stripped, suitable for the
// JWKS discovery document.
func (k *JSONWebKey) Public() JSONWebKey {
	pub := *k
	pub.PrivateKey = nil
	if k.PrivateKey != nil && pub.N == "" {
		pub.N = base64.RawURLEncoding.EncodeToString(k.PrivateKey.PublicKey.N.Bytes())
		pub.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.PrivateKey.PublicKey.E)).Bytes())
	}
	return pub
}
