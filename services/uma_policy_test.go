package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

func newTestPolicyEngine(sets *memResourceSetRepo, consents *memConsentRepo, predicates *PredicateRegistry) *PolicyEngine {
	return NewPolicyEngine(sets, consents, predicates, time.Hour, testLogger())
}

func ticketFor(resourceSetID string, scopes ...string) *domain.Ticket {
	now := time.Now().UTC()
	return &domain.Ticket{
		ID:        "ticket-1",
		Lines:     []domain.TicketLine{{ResourceSetID: resourceSetID, Scopes: scopes}},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
}

func TestPolicyEngine_RulesCombineWithOR(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read", "write"},
		Policies: []domain.PolicyRule{
			{ID: "p1", ClientIDsAllowed: []string{"other-client"}, Scopes: []string{"read", "write"}},
			{ID: "p2", Scopes: []string{"read", "write"}},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

	decision, err := engine.Evaluate(context.Background(), ticketFor("rs-1", "read"), "client-1", nil)
	require.NoError(t, err)

	assert.Equal(t, DecisionAuthorized, decision.Kind)
	require.Len(t, decision.Permissions, 1)
	assert.Equal(t, "rs-1", decision.Permissions[0].ResourceSetID)
	assert.Equal(t, []string{"read"}, decision.Permissions[0].Scopes)
	assert.True(t, decision.Permissions[0].Expiry.After(decision.Permissions[0].NotBefore))
}

func TestPolicyEngine_ScopesClampedToRule(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read", "write", "delete"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read", "write", "delete"}},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

	decision, err := engine.Evaluate(context.Background(), ticketFor("rs-1", "write", "read"), "client-1", nil)
	require.NoError(t, err)

	require.Equal(t, DecisionAuthorized, decision.Kind)
	// Request order survives the intersection.
	assert.Equal(t, []string{"write", "read"}, decision.Permissions[0].Scopes)
}

func TestPolicyEngine_MissingClaims(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}, Claims: []domain.ClaimRequirement{
				{Type: "role", Value: "admin"},
			}},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())
	ticket := ticketFor("rs-1", "read")

	decision, err := engine.Evaluate(context.Background(), ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionNeedInfo, decision.Kind)
	require.Len(t, decision.MissingClaims, 1)
	assert.Equal(t, "role", decision.MissingClaims[0].Type)

	// Presenting the claim on resubmission authorizes the same ticket.
	decision, err = engine.Evaluate(context.Background(), ticket, "client-1", []domain.RequesterClaim{
		{Type: "role", Value: "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAuthorized, decision.Kind)
}

func TestPolicyEngine_ClaimIssuerMustMatch(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}, Claims: []domain.ClaimRequirement{
				{Type: "role", Value: "admin", Issuer: "https://idp.example.com"},
			}},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

	decision, err := engine.Evaluate(context.Background(), ticketFor("rs-1", "read"), "client-1", []domain.RequesterClaim{
		{Type: "role", Value: "admin", Issuer: "https://rogue.example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionNeedInfo, decision.Kind)
}

func TestPolicyEngine_ConsentGate(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}, IsResourceOwnerConsentNeeded: true},
		},
	}
	consents := newMemConsentRepo()
	engine := newTestPolicyEngine(sets, consents, NewPredicateRegistry())
	ticket := ticketFor("rs-1", "read")

	decision, err := engine.Evaluate(context.Background(), ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionRequestSubmitted, decision.Kind)

	require.NoError(t, consents.UpsertConsent(context.Background(), &domain.Consent{
		Subject:   "alice",
		ClientID:  "client-1",
		Scopes:    []string{"read"},
		GrantedAt: time.Now().UTC(),
	}))

	decision, err = engine.Evaluate(context.Background(), ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionAuthorized, decision.Kind)
}

func TestPolicyEngine_GrantAndRevokeConsent(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}, IsResourceOwnerConsentNeeded: true},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())
	ctx := context.Background()
	ticket := ticketFor("rs-1", "read")

	require.NoError(t, engine.GrantConsent(ctx, &domain.Consent{
		Subject:  "alice",
		ClientID: "client-1",
		Scopes:   []string{"read"},
	}))

	decision, err := engine.Evaluate(ctx, ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionAuthorized, decision.Kind)

	require.NoError(t, engine.RevokeConsent(ctx, "alice", "client-1"))

	decision, err = engine.Evaluate(ctx, ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionRequestSubmitted, decision.Kind)

	var oauthErr *serrors.OAuth2Error
	err = engine.GrantConsent(ctx, &domain.Consent{Subject: "alice"})
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "the parameter client_id is missing", oauthErr.Description)
}

func TestPolicyEngine_ScriptPredicate(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-1"] = &domain.ResourceSet{
		ID:     "rs-1",
		Owner:  "alice",
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}, Script: "is_employee"},
		},
	}

	t.Run("unregistered predicate never matches", func(t *testing.T) {
		engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

		decision, err := engine.Evaluate(context.Background(), ticketFor("rs-1", "read"), "client-1", nil)
		require.NoError(t, err)
		assert.Equal(t, DecisionNotAuthorized, decision.Kind)
	})

	t.Run("registered predicate decides", func(t *testing.T) {
		registry := NewPredicateRegistry(PredicateFunc{
			PredicateName: "is_employee",
			Fn: func(claims []domain.RequesterClaim) bool {
				for _, c := range claims {
					if c.Type == "department" {
						return true
					}
				}
				return false
			},
		})
		engine := newTestPolicyEngine(sets, newMemConsentRepo(), registry)

		decision, err := engine.Evaluate(context.Background(), ticketFor("rs-1", "read"), "client-1", []domain.RequesterClaim{
			{Type: "department", Value: "it"},
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAuthorized, decision.Kind)
	})
}

func TestPolicyEngine_UnknownResourceSet(t *testing.T) {
	engine := newTestPolicyEngine(newMemResourceSetRepo(), newMemConsentRepo(), NewPredicateRegistry())

	decision, err := engine.Evaluate(context.Background(), ticketFor("rs-missing", "read"), "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionNotAuthorized, decision.Kind)
}

func TestPolicyEngine_EveryLineMustMatch(t *testing.T) {
	sets := newMemResourceSetRepo()
	sets.sets["rs-open"] = &domain.ResourceSet{
		ID:     "rs-open",
		Owner:  "alice",
		Name:   "open",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", Scopes: []string{"read"}},
		},
	}
	sets.sets["rs-locked"] = &domain.ResourceSet{
		ID:     "rs-locked",
		Owner:  "alice",
		Name:   "locked",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{ID: "p1", ClientIDsAllowed: []string{"someone-else"}, Scopes: []string{"read"}},
		},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID: "ticket-2",
		Lines: []domain.TicketLine{
			{ResourceSetID: "rs-open", Scopes: []string{"read"}},
			{ResourceSetID: "rs-locked", Scopes: []string{"read"}},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	decision, err := engine.Evaluate(context.Background(), ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionNotAuthorized, decision.Kind)
}

func TestPolicyEngine_MissingClaimsDeduplicated(t *testing.T) {
	rule := func(id string) domain.PolicyRule {
		return domain.PolicyRule{ID: id, Scopes: []string{"read"}, Claims: []domain.ClaimRequirement{
			{Type: "role", Value: "admin"},
		}}
	}
	sets := newMemResourceSetRepo()
	sets.sets["rs-a"] = &domain.ResourceSet{
		ID: "rs-a", Owner: "alice", Name: "a", Scopes: []string{"read"},
		Policies: []domain.PolicyRule{rule("p1")},
	}
	sets.sets["rs-b"] = &domain.ResourceSet{
		ID: "rs-b", Owner: "alice", Name: "b", Scopes: []string{"read"},
		Policies: []domain.PolicyRule{rule("p2")},
	}
	engine := newTestPolicyEngine(sets, newMemConsentRepo(), NewPredicateRegistry())

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID: "ticket-3",
		Lines: []domain.TicketLine{
			{ResourceSetID: "rs-a", Scopes: []string{"read"}},
			{ResourceSetID: "rs-b", Scopes: []string{"read"}},
		},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}

	decision, err := engine.Evaluate(context.Background(), ticket, "client-1", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionNeedInfo, decision.Kind)
	assert.Len(t, decision.MissingClaims, 1)
}
