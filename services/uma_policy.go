package services

import (
	"context"
	"errors"
	"time"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	"go.pilab.hu/authz/internal/metrics"
	applog "go.pilab.hu/authz/log"
)

// DecisionKind is the outcome of a policy evaluation.
type DecisionKind int

const (
	DecisionAuthorized DecisionKind = iota
	DecisionNeedInfo
	DecisionRequestSubmitted
	DecisionNotAuthorized
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAuthorized:
		return "authorized"
	case DecisionNeedInfo:
		return "need_info"
	case DecisionRequestSubmitted:
		return "request_submitted"
	default:
		return "not_authorized"
	}
}

// Decision is the result of evaluating a ticket against resource set policies.
type Decision struct {
	Kind DecisionKind

	// Permissions granted when Kind is DecisionAuthorized.
	Permissions []domain.Permission

	// MissingClaims aggregated when Kind is DecisionNeedInfo.
	MissingClaims []domain.ClaimRequirement
}

// PolicyEngine evaluates permission tickets against the policy rules of the
// resource sets they reference.
type PolicyEngine struct {
	resourceSets domain.ResourceSetRepository
	consents     domain.ConsentRepository
	predicates   *PredicateRegistry
	logger       applog.Logger

	permissionTTL time.Duration
}

// NewPolicyEngine creates a PolicyEngine.
func NewPolicyEngine(
	resourceSets domain.ResourceSetRepository,
	consents domain.ConsentRepository,
	predicates *PredicateRegistry,
	permissionTTL time.Duration,
	logger applog.Logger,
) *PolicyEngine {
	return &PolicyEngine{
		resourceSets:  resourceSets,
		consents:      consents,
		predicates:    predicates,
		permissionTTL: permissionTTL,
		logger:        logger,
	}
}

// ruleOutcome classifies one rule against one ticket line.
type ruleOutcome int

const (
	ruleMatched ruleOutcome = iota
	ruleMissingClaims
	rulePendingConsent
	ruleFailed
)

// Evaluate runs every line of the ticket against its resource set's rules.
// Rules on a resource set combine with OR semantics. The ticket is authorized
// only when every line has at least one fully matching rule; otherwise the
// softest blocking outcome wins: missing claims before pending consent before
// outright denial. Evaluation never mutates the ticket.
func (e *PolicyEngine) Evaluate(ctx context.Context, ticket *domain.Ticket, requesterClientID string, presented []domain.RequesterClaim) (*Decision, error) {
	decision, err := e.evaluate(ctx, ticket, requesterClientID, presented)
	if err != nil {
		return nil, err
	}
	metrics.PolicyDecisionsTotal.WithLabelValues(decision.Kind.String()).Inc()
	return decision, nil
}

func (e *PolicyEngine) evaluate(ctx context.Context, ticket *domain.Ticket, requesterClientID string, presented []domain.RequesterClaim) (*Decision, error) {
	now := time.Now().UTC()

	var (
		permissions  []domain.Permission
		missing      []domain.ClaimRequirement
		sawNeedInfo  bool
		sawSubmitted bool
		allLinesOK   = true
	)

	for _, line := range ticket.Lines {
		rs, err := e.resourceSets.GetResourceSet(ctx, line.ResourceSetID)
		if err != nil {
			if errors.Is(err, serrors.ErrNotFound) {
				return &Decision{Kind: DecisionNotAuthorized}, nil
			}
			return nil, err
		}

		lineMatched := false
		var lineMissing []domain.ClaimRequirement
		lineSubmitted := false

		for i := range rs.Policies {
			rule := &rs.Policies[i]
			outcome, ruleMissing := e.evaluateRule(ctx, rule, rs, line.Scopes, requesterClientID, presented)
			switch outcome {
			case ruleMatched:
				lineMatched = true
				permissions = append(permissions, domain.Permission{
					ResourceSetID: rs.ID,
					Scopes:        clampScopes(line.Scopes, rule.Scopes),
					NotBefore:     now,
					Expiry:        now.Add(e.permissionTTL),
				})
			case ruleMissingClaims:
				lineMissing = append(lineMissing, ruleMissing...)
			case rulePendingConsent:
				lineSubmitted = true
			}
		}

		if lineMatched {
			continue
		}
		allLinesOK = false
		if len(lineMissing) > 0 {
			sawNeedInfo = true
			missing = appendMissing(missing, lineMissing)
		} else if lineSubmitted {
			sawSubmitted = true
		}
	}

	switch {
	case allLinesOK && len(permissions) > 0:
		return &Decision{Kind: DecisionAuthorized, Permissions: permissions}, nil
	case sawNeedInfo:
		return &Decision{Kind: DecisionNeedInfo, MissingClaims: missing}, nil
	case sawSubmitted:
		return &Decision{Kind: DecisionRequestSubmitted}, nil
	default:
		return &Decision{Kind: DecisionNotAuthorized}, nil
	}
}

// evaluateRule classifies a single rule. A returned ruleMissingClaims outcome
// means missing claims were the rule's only failure, so the caller may still
// satisfy it by presenting more claims.
func (e *PolicyEngine) evaluateRule(ctx context.Context, rule *domain.PolicyRule, rs *domain.ResourceSet, requestedScopes []string, clientID string, presented []domain.RequesterClaim) (ruleOutcome, []domain.ClaimRequirement) {
	if !rule.AllowsClient(clientID) {
		return ruleFailed, nil
	}
	if !rule.CoversScopes(requestedScopes) {
		return ruleFailed, nil
	}

	var missing []domain.ClaimRequirement
	for _, req := range rule.Claims {
		if !req.SatisfiedBy(presented) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return ruleMissingClaims, missing
	}

	if rule.Script != "" && !e.predicates.Evaluate(rule.Script, presented) {
		return ruleFailed, nil
	}

	if rule.IsResourceOwnerConsentNeeded {
		consents, err := e.consents.GetConsentsForGivenUser(ctx, rs.Owner)
		if err != nil {
			e.logger.Warn(ctx, "failed to load consents", map[string]any{
				"owner": rs.Owner,
				"error": err.Error(),
			})
			return rulePendingConsent, nil
		}
		granted := false
		for i := range consents {
			if consents[i].Covers(clientID, requestedScopes) {
				granted = true
				break
			}
		}
		if !granted {
			return rulePendingConsent, nil
		}
	}

	return ruleMatched, nil
}

// clampScopes intersects the requested scopes with the rule's scopes,
// preserving request order.
func clampScopes(requested, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// appendMissing unions claim requirements, deduplicating by type+value+issuer.
func appendMissing(acc, more []domain.ClaimRequirement) []domain.ClaimRequirement {
	seen := make(map[domain.ClaimRequirement]struct{}, len(acc))
	for _, c := range acc {
		seen[c] = struct{}{}
	}
	for _, c := range more {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			acc = append(acc, c)
		}
	}
	return acc
}

// GrantConsent records the resource owner's consent for a client. Granting
// again for the same client refreshes the grant and clears a prior
// revocation.
func (e *PolicyEngine) GrantConsent(ctx context.Context, consent *domain.Consent) error {
	if consent.Subject == "" {
		return serrors.NewMissingParameter("subject")
	}
	if consent.ClientID == "" {
		return serrors.NewMissingParameter("client_id")
	}
	consent.GrantedAt = time.Now().UTC()
	consent.RevokedAt = time.Time{}
	if err := e.consents.UpsertConsent(ctx, consent); err != nil {
		return err
	}
	e.logger.Info(ctx, "consent granted", map[string]any{
		"subject":   consent.Subject,
		"client_id": consent.ClientID,
	})
	return nil
}

// RevokeConsent withdraws the subject's consent for a client.
func (e *PolicyEngine) RevokeConsent(ctx context.Context, subject, clientID string) error {
	if clientID == "" {
		return serrors.NewMissingParameter("client_id")
	}
	return e.consents.RevokeConsent(ctx, subject, clientID)
}
