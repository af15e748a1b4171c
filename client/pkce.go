package client

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"go.pilab.hu/authz/domain"
)

// CheckPkce verifies a PKCE code verifier against the challenge bound to the
// authorization code. When the client does not require PKCE the check always
// passes. When it does, a code without a stored challenge fails.
func CheckPkce(requirePKCE bool, verifier string, code *domain.AuthCode) bool {
	if !requirePKCE {
		return true
	}
	if code.CodeChallenge == "" {
		return false
	}

	switch code.CodeChallengeMethod {
	case domain.CodeChallengePlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(code.CodeChallenge)) == 1
	case domain.CodeChallengeS256, "":
		derived := DeriveS256Challenge(verifier)
		return subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) == 1
	default:
		return false
	}
}

// DeriveS256Challenge computes base64url(SHA256(verifier)) without padding.
func DeriveS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
