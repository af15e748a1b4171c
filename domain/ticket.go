package domain

import "time"

// TicketLine is one permission request recorded on a ticket: a resource set
// and the scopes asked for on it.
type TicketLine struct {
	ResourceSetID string   `bson:"resource_set_id" json:"resource_set_id"`
	Scopes        []string `bson:"scopes" json:"scopes"`
}

// Ticket is an opaque reference to a pending UMA permission request, created
// by the permission endpoint and consumed by the uma-ticket grant when the
// decision is Authorized. NeedInfo and RequestSubmitted evaluations leave the
// ticket in place for resubmission until it expires.
type Ticket struct {
	ID               string       `bson:"_id" json:"id"`
	Lines            []TicketLine `bson:"lines" json:"lines"`
	IsAuthorizedByRO bool         `bson:"authorized_by_ro" json:"authorized_by_ro"`
	CreatedAt        time.Time    `bson:"created_at" json:"created_at"`
	ExpiresAt        time.Time    `bson:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the ticket can no longer be redeemed at now.
func (t *Ticket) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Permission is a granted right embedded in a requesting-party token.
type Permission struct {
	ResourceSetID string    `bson:"resource_set_id" json:"resource_set_id"`
	Scopes        []string  `bson:"scopes" json:"scopes"`
	NotBefore     time.Time `bson:"nbf" json:"nbf"`
	Expiry        time.Time `bson:"exp" json:"exp"`
}

// IsValid reports whether the permission currently grants the given scopes on
// the given resource.
func (p *Permission) IsValid(resourceID string, scopes ...string) bool {
	if p.ResourceSetID != resourceID {
		return false
	}
	now := time.Now().UTC()
	if now.Before(p.NotBefore) || now.After(p.Expiry) {
		return false
	}
	granted := make(map[string]struct{}, len(p.Scopes))
	for _, s := range p.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
