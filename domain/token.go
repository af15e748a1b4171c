package domain

import "time"

// Token types as stored.
const (
	TokenTypeBearer = "Bearer"
)

// GrantedToken is a token set issued by the token endpoint: the access token,
// the optional id/refresh tokens and the material needed for safe reuse and
// refresh-chain bookkeeping.
type GrantedToken struct {
	ID           string `bson:"_id" json:"id"`
	AccessToken  string `bson:"access_token" json:"access_token"`
	IDToken      string `bson:"id_token,omitempty" json:"id_token,omitempty"`
	RefreshToken string `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	TokenType    string `bson:"token_type" json:"token_type"`

	Scope    string `bson:"scope" json:"scope"`
	ClientID string `bson:"client_id" json:"client_id"`
	UserID   string `bson:"user_id,omitempty" json:"user_id,omitempty"`

	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt        time.Time `bson:"expires_at" json:"expires_at"`
	RefreshExpiresAt time.Time `bson:"refresh_expires_at,omitempty" json:"refresh_expires_at,omitempty"`
	IsRevoked        bool      `bson:"is_revoked" json:"is_revoked"`

	// ParentTokenID links a refreshed token to the token it replaced.
	ParentTokenID string `bson:"parent_token_id,omitempty" json:"parent_token_id,omitempty"`

	// Payload fingerprints recorded at issuance. A later request with a
	// subset-matching payload may reuse this token instead of minting.
	IDTokenPayload  map[string]string `bson:"id_token_payload,omitempty" json:"id_token_payload,omitempty"`
	UserInfoPayload map[string]string `bson:"userinfo_payload,omitempty" json:"userinfo_payload,omitempty"`

	// Permissions carried by an UMA requesting-party token.
	Permissions []Permission `bson:"permissions,omitempty" json:"permissions,omitempty"`
}

// IsExpired reports whether the access token lifetime elapsed at now.
func (t *GrantedToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// MatchesPayloads reports whether every claim of the candidate payloads is
// present with the same value in the stored fingerprints. Empty candidates
// match everything.
func (t *GrantedToken) MatchesPayloads(idToken, userInfo map[string]string) bool {
	return subsetMatch(idToken, t.IDTokenPayload) && subsetMatch(userInfo, t.UserInfoPayload)
}

func subsetMatch(candidate, stored map[string]string) bool {
	for k, v := range candidate {
		if stored[k] != v {
			return false
		}
	}
	return true
}
