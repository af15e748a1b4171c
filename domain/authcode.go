package domain

import "time"

// PKCE code challenge methods.
const (
	CodeChallengePlain = "plain"
	CodeChallengeS256  = "S256"
)

// AuthCode represents an OAuth 2.0 authorization code. It is created by the
// authorize endpoint and consumed exactly once by the authorization_code
// grant.
type AuthCode struct {
	Code        string    `bson:"_id" json:"code"`
	ClientID    string    `bson:"client_id" json:"client_id"`
	UserID      string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"`
	Scope       string    `bson:"scope" json:"scope"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`

	CodeChallenge       string `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

// IsExpired reports whether the code lifetime has elapsed at now.
func (c *AuthCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
