package domain

import "time"

// Scope is a server-level scope definition. Client registrations may only
// reference scopes that exist here.
type Scope struct {
	Name        string    `bson:"_id" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	IsOpenID    bool      `bson:"is_openid" json:"is_openid"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
