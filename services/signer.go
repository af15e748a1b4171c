package services

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"go.pilab.hu/authz/domain"
)

// TokenSigner signs JWT claims with keys from the resolver. The kid of the
// chosen key lands in the token header so verifiers can select the matching
// public key from the JWKS document.
type TokenSigner struct {
	resolver *KeyResolver
}

// NewTokenSigner creates a signer over the given key resolver.
func NewTokenSigner(resolver *KeyResolver) *TokenSigner {
	return &TokenSigner{resolver: resolver}
}

// Sign signs claims with a key matching alg; an empty alg selects the default
// signing key.
func (s *TokenSigner) Sign(claims jwt.Claims, alg string) (string, error) {
	var (
		key *domain.JSONWebKey
		err error
	)
	if alg == "" {
		key, err = s.resolver.GetDefaultSigningKey()
	} else {
		key, err = s.resolver.GetSigningKey(alg)
	}
	if err != nil {
		return "", fmt.Errorf("cannot resolve signing key: %w", err)
	}
	if key.PrivateKey == nil {
		return "", fmt.Errorf("signing key %s has no private material", key.Kid)
	}

	method := jwt.GetSigningMethod(key.Alg)
	if method == nil {
		method = jwt.SigningMethodRS256
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.Kid

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Keyfunc returns a jwt.Keyfunc resolving verification keys by kid, for
// introspection and RPT validation.
func (s *TokenSigner) Keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := s.resolver.GetSigningKey("")
		if err != nil {
			return nil, err
		}
		if kid != "" && key.Kid != kid {
			if k, kerr := s.resolver.keyByID(kid); kerr == nil {
				key = k
			}
		}
		return key.RSAPublicKey()
	}
}
