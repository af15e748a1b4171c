package domain

import "time"

// Two-factor delivery methods.
const (
	TwoFactorMethodEmail = "email"
	TwoFactorMethodSMS   = "sms"
)

// ResourceOwner is an end user able to authorize clients via the password
// grant and to own resource sets. Credentials are stored as a hex-encoded
// SHA-256 of the password; lookups compare hashes, never cleartext.
type ResourceOwner struct {
	ID               string            `bson:"_id" json:"id"`
	Login            string            `bson:"login" json:"login"`
	PasswordHash     string            `bson:"password_hash" json:"-"`
	Claims           map[string]string `bson:"claims,omitempty" json:"claims,omitempty"`
	TwoFactorEnabled bool              `bson:"two_factor_enabled" json:"two_factor_enabled"`
	TwoFactorMethod  string            `bson:"two_factor_method,omitempty" json:"two_factor_method,omitempty"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `bson:"updated_at" json:"updated_at"`
	IsBlocked        bool              `bson:"is_blocked" json:"is_blocked"`
}
