package domain

// ResourceSet is a protected resource registered by its owner, carrying the
// authorization policies evaluated for UMA tickets. Rules combine with OR
// semantics: one fully matching rule authorizes the request.
type ResourceSet struct {
	ID       string       `bson:"_id" json:"_id"`
	Owner    string       `bson:"owner" json:"owner"`
	Name     string       `bson:"name" json:"name"`
	Type     string       `bson:"type,omitempty" json:"type,omitempty"`
	Scopes   []string     `bson:"scopes" json:"scopes"`
	IconURI  string       `bson:"icon_uri,omitempty" json:"icon_uri,omitempty"`
	Policies []PolicyRule `bson:"policies,omitempty" json:"policies,omitempty"`
}

// HasScopes reports whether every requested scope is registered on the
// resource set.
func (r *ResourceSet) HasScopes(requested []string) bool {
	known := make(map[string]struct{}, len(r.Scopes))
	for _, s := range r.Scopes {
		known[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := known[s]; !ok {
			return false
		}
	}
	return true
}

// PolicyRule is one authorization rule of a resource set.
type PolicyRule struct {
	ID               string             `bson:"_id,omitempty" json:"id,omitempty"`
	ClientIDsAllowed []string           `bson:"client_ids_allowed,omitempty" json:"client_ids_allowed,omitempty"`
	Scopes           []string           `bson:"scopes" json:"scopes"`
	Claims           []ClaimRequirement `bson:"claims,omitempty" json:"claims,omitempty"`

	// IsResourceOwnerConsentNeeded gates the rule on a recorded Consent of
	// the resource owner instead of failing outright.
	IsResourceOwnerConsentNeeded bool `bson:"consent_needed" json:"consent_needed"`

	// Script names a predicate registered with the policy engine. Empty
	// means no script check.
	Script string `bson:"script,omitempty" json:"script,omitempty"`
}

// AllowsClient reports whether the rule's client allow-list admits clientID.
// An empty list admits any client.
func (p *PolicyRule) AllowsClient(clientID string) bool {
	if len(p.ClientIDsAllowed) == 0 {
		return true
	}
	for _, id := range p.ClientIDsAllowed {
		if id == clientID {
			return true
		}
	}
	return false
}

// CoversScopes reports whether every requested scope is within the rule.
func (p *PolicyRule) CoversScopes(requested []string) bool {
	allowed := make(map[string]struct{}, len(p.Scopes))
	for _, s := range p.Scopes {
		allowed[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}

// ClaimRequirement is a claim the requesting party must present for a rule to
// match. When Issuer is set, the claim must have been asserted by that
// OpenID provider.
type ClaimRequirement struct {
	Type   string `bson:"type" json:"type"`
	Value  string `bson:"value" json:"value"`
	Issuer string `bson:"issuer,omitempty" json:"issuer,omitempty"`
}

// RequesterClaim is a claim presented by the requesting party, optionally
// qualified with the issuer that asserted it.
type RequesterClaim struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Issuer string `json:"issuer,omitempty"`
}

// SatisfiedBy reports whether any presented claim satisfies the requirement.
func (c *ClaimRequirement) SatisfiedBy(presented []RequesterClaim) bool {
	for _, p := range presented {
		if p.Type != c.Type || p.Value != c.Value {
			continue
		}
		if c.Issuer != "" && p.Issuer != c.Issuer {
			continue
		}
		return true
	}
	return false
}
