package services

import (
	"context"

	"go.pilab.hu/authz/domain"
)

// AccountFilterResult reports whether a claim set passed the account filter
// and which rules rejected it.
type AccountFilterResult struct {
	IsValid     bool
	RulesBroken []string
}

// AccountFilter is the external collaborator consulted by the password grant
// to reject disallowed claim sets.
type AccountFilter interface {
	Check(ctx context.Context, claims map[string]string) (*AccountFilterResult, error)
}

// PassthroughAccountFilter accepts every claim set. Used when no filter is
// configured.
type PassthroughAccountFilter struct{}

// Check implements AccountFilter.
func (PassthroughAccountFilter) Check(context.Context, map[string]string) (*AccountFilterResult, error) {
	return &AccountFilterResult{IsValid: true}, nil
}

// Notifier delivers a two-factor confirmation code to a resource owner. The
// transport (SMS, email) lives outside the core.
type Notifier interface {
	SendCode(ctx context.Context, owner *domain.ResourceOwner, code string) error
}

// ClaimsPredicate is a named policy predicate evaluated against the claims a
// requester presented. Predicates are pure: no I/O, no side effects.
type ClaimsPredicate interface {
	Name() string
	Evaluate(claims []domain.RequesterClaim) bool
}

// PredicateRegistry resolves the named script predicates referenced by policy
// rules. Rules naming an unregistered predicate never match.
type PredicateRegistry struct {
	predicates map[string]ClaimsPredicate
}

// NewPredicateRegistry creates a registry over the given predicates.
func NewPredicateRegistry(predicates ...ClaimsPredicate) *PredicateRegistry {
	r := &PredicateRegistry{predicates: make(map[string]ClaimsPredicate, len(predicates))}
	for _, p := range predicates {
		r.predicates[p.Name()] = p
	}
	return r
}

// Register adds or replaces a predicate.
func (r *PredicateRegistry) Register(p ClaimsPredicate) {
	r.predicates[p.Name()] = p
}

// Evaluate runs the named predicate; unknown names evaluate to false.
func (r *PredicateRegistry) Evaluate(name string, claims []domain.RequesterClaim) bool {
	if r == nil {
		return false
	}
	p, ok := r.predicates[name]
	if !ok {
		return false
	}
	return p.Evaluate(claims)
}

// PredicateFunc adapts a function into a ClaimsPredicate.
type PredicateFunc struct {
	PredicateName string
	Fn            func(claims []domain.RequesterClaim) bool
}

// Name implements ClaimsPredicate.
func (p PredicateFunc) Name() string { return p.PredicateName }

// Evaluate implements ClaimsPredicate.
func (p PredicateFunc) Evaluate(claims []domain.RequesterClaim) bool { return p.Fn(claims) }
