package domain

import "time"

// Consent records a resource owner's approval of a client acting on a set of
// scopes and claims. One recorded consent satisfies a policy rule's
// consent-needed gate.
type Consent struct {
	ID            string    `bson:"_id,omitempty" json:"id,omitempty"`
	Subject       string    `bson:"subject" json:"subject"`
	ClientID      string    `bson:"client_id" json:"client_id"`
	Scopes        []string  `bson:"scopes" json:"scopes"`
	Claims        []string  `bson:"claims,omitempty" json:"claims,omitempty"`
	GrantedAt     time.Time `bson:"granted_at" json:"granted_at"`
	RevokedAt     time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	ResourceSetID string    `bson:"resource_set_id,omitempty" json:"resource_set_id,omitempty"`
}

// Covers reports whether this consent covers clientID requesting scopes.
func (c *Consent) Covers(clientID string, scopes []string) bool {
	if c.ClientID != clientID || !c.RevokedAt.IsZero() {
		return false
	}
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
