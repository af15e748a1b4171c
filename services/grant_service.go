package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/authz/client"
	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	"go.pilab.hu/authz/internal/metrics"
	applog "go.pilab.hu/authz/log"
)

// TokenRequest carries the form fields of one token endpoint call. Which
// fields are meaningful depends on the grant type.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code
	Code         string
	RedirectURI  string
	ResponseType string
	CodeVerifier string

	// password
	Username string
	Password string
	MFACode  string

	// refresh_token
	RefreshToken string

	// device flow
	DeviceCode string

	// uma-ticket
	Ticket           string
	ClaimToken       string
	ClaimTokenFormat string

	Scope string
}

// GrantService dispatches token requests on grant_type. Every branch returns
// either a granted token or a typed error; expected failures never panic.
type GrantService struct {
	clients     domain.ClientRepository
	owners      domain.ResourceOwnerRepository
	authCodes   domain.AuthCodeRepository
	deviceCodes domain.DeviceCodeRepository
	tickets     domain.TicketRepository

	tokens        *TokenService
	policy        *PolicyEngine
	twoFactor     *TwoFactorService
	accountFilter AccountFilter
	logger        applog.Logger
}

// NewGrantService creates the token endpoint dispatcher.
func NewGrantService(
	clients domain.ClientRepository,
	owners domain.ResourceOwnerRepository,
	authCodes domain.AuthCodeRepository,
	deviceCodes domain.DeviceCodeRepository,
	tickets domain.TicketRepository,
	tokens *TokenService,
	policy *PolicyEngine,
	twoFactor *TwoFactorService,
	accountFilter AccountFilter,
	logger applog.Logger,
) *GrantService {
	return &GrantService{
		clients:       clients,
		owners:        owners,
		authCodes:     authCodes,
		deviceCodes:   deviceCodes,
		tickets:       tickets,
		tokens:        tokens,
		policy:        policy,
		twoFactor:     twoFactor,
		accountFilter: accountFilter,
		logger:        logger,
	}
}

// Grant runs one token request to completion.
func (s *GrantService) Grant(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	if req.GrantType == "" {
		return nil, serrors.NewMissingParameter("grant_type")
	}

	token, err := s.dispatch(ctx, req)
	if err != nil {
		metrics.GrantFailuresTotal.WithLabelValues(req.GrantType).Inc()
		return nil, err
	}
	return token, nil
}

func (s *GrantService) dispatch(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	switch req.GrantType {
	case domain.GrantTypeAuthorizationCode:
		return s.grantAuthorizationCode(ctx, req)
	case domain.GrantTypeClientCredentials:
		return s.grantClientCredentials(ctx, req)
	case domain.GrantTypePassword:
		return s.grantPassword(ctx, req)
	case domain.GrantTypeRefreshToken:
		return s.grantRefreshToken(ctx, req)
	case domain.GrantTypeDeviceCode, domain.GrantTypeDeviceCodeRFC8628:
		return s.grantDeviceCode(ctx, req)
	case domain.GrantTypeUMATicket:
		return s.grantUMATicket(ctx, req)
	default:
		return nil, serrors.NewUnsupportedGrantType(req.GrantType)
	}
}

// AuthenticateClient resolves the caller and, unless the client is public,
// verifies its secret.
func (s *GrantService) AuthenticateClient(ctx context.Context, req *TokenRequest) (*domain.Client, error) {
	if req.ClientID == "" {
		return nil, serrors.NewMissingParameter("client_id")
	}

	c, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidClient("the client is unknown")
		}
		return nil, err
	}
	if !c.IsActive {
		return nil, serrors.NewInvalidClient("the client is disabled")
	}

	if c.TokenEndpointAuthMethod == domain.AuthMethodNone {
		return c, nil
	}

	validated, err := s.clients.ValidateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		if errors.Is(err, serrors.ErrInvalidCredentials) {
			return nil, serrors.NewInvalidClient("client authentication failed")
		}
		return nil, err
	}
	return validated, nil
}

// AuthCodeOptions describes a code to mint after a successful authorization
// request.
type AuthCodeOptions struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	TTL                 time.Duration
}

// IssueAuthCode validates an authorization request against the client
// registration and stores a single-use code for it.
func (s *GrantService) IssueAuthCode(ctx context.Context, opts AuthCodeOptions) (*domain.AuthCode, error) {
	c, err := s.clients.GetClient(ctx, opts.ClientID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidClient("the client is unknown")
		}
		return nil, err
	}
	if !c.IsActive {
		return nil, serrors.NewInvalidClient("the client is disabled")
	}
	if !c.AllowsGrantType(domain.GrantTypeAuthorizationCode) {
		return nil, serrors.NewUnauthorizedClient("the client may not use the authorization_code grant")
	}
	if !c.AllowsRedirectURI(opts.RedirectURI) {
		return nil, serrors.NewInvalidRequest("the redirect_uri is not registered for the client")
	}
	if !c.AllowsScopes(splitScope(opts.Scope)) {
		return nil, serrors.NewInvalidScope("the requested scope exceeds the scopes granted to the client")
	}
	if c.RequirePKCE && opts.CodeChallenge == "" {
		return nil, serrors.NewInvalidRequest("the client requires a code_challenge")
	}

	now := time.Now().UTC()
	code := &domain.AuthCode{
		Code:                uuid.NewString(),
		ClientID:            c.ID,
		UserID:              opts.UserID,
		RedirectURI:         opts.RedirectURI,
		Scope:               opts.Scope,
		CreatedAt:           now,
		ExpiresAt:           now.Add(opts.TTL),
		CodeChallenge:       opts.CodeChallenge,
		CodeChallengeMethod: opts.CodeChallengeMethod,
	}
	if err := s.authCodes.SaveAuthCode(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

func (s *GrantService) grantAuthorizationCode(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	for _, p := range []struct{ name, value string }{
		{"scope", req.Scope},
		{"client_id", req.ClientID},
		{"redirect_uri", req.RedirectURI},
		{"response_type", req.ResponseType},
		{"code", req.Code},
	} {
		if p.value == "" {
			return nil, serrors.NewMissingParameter(p.name)
		}
	}

	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !c.AllowsGrantType(domain.GrantTypeAuthorizationCode) {
		return nil, serrors.NewUnauthorizedClient("the client may not use the authorization_code grant")
	}

	code, err := s.authCodes.ConsumeAuthCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("the authorization code is invalid")
		}
		return nil, err
	}

	if code.ClientID != c.ID {
		return nil, serrors.NewInvalidGrant("the authorization code was issued to another client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, serrors.NewInvalidGrant("the redirect_uri does not match the authorization request")
	}
	if code.IsExpired(time.Now().UTC()) {
		return nil, serrors.NewInvalidGrant("the authorization code is expired")
	}
	if !client.CheckPkce(c.RequirePKCE, req.CodeVerifier, code) {
		return nil, serrors.NewInvalidGrant("the code verifier does not match the code challenge")
	}

	opts := IssueOptions{
		ClientID:            c.ID,
		Subject:             code.UserID,
		Scope:               code.Scope,
		IncludeRefreshToken: c.AllowsGrantType(domain.GrantTypeRefreshToken),
	}
	if hasScope(code.Scope, "openid") {
		opts.IDTokenPayload = map[string]string{"azp": c.ID}
	}
	return s.tokens.Issue(ctx, opts)
}

func (s *GrantService) grantClientCredentials(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if c.TokenEndpointAuthMethod == domain.AuthMethodNone {
		return nil, serrors.NewUnauthorizedClient("public clients may not use the client_credentials grant")
	}
	if !c.AllowsGrantType(domain.GrantTypeClientCredentials) {
		return nil, serrors.NewUnauthorizedClient("the client may not use the client_credentials grant")
	}

	requested := splitScope(req.Scope)
	if !c.AllowsScopes(requested) {
		return nil, serrors.NewInvalidScope("the requested scope exceeds the scopes granted to the client")
	}
	scope := req.Scope
	if scope == "" {
		scope = strings.Join(c.AllowedScopes, " ")
	}

	return s.tokens.Issue(ctx, IssueOptions{
		ClientID:   c.ID,
		Subject:    c.ID,
		Scope:      scope,
		AllowReuse: true,
	})
}

func (s *GrantService) grantPassword(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	if req.Username == "" {
		return nil, serrors.NewMissingParameter("username")
	}
	if req.Password == "" {
		return nil, serrors.NewMissingParameter("password")
	}

	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !c.AllowsGrantType(domain.GrantTypePassword) {
		return nil, serrors.NewUnauthorizedClient("the client may not use the password grant")
	}

	owner, err := s.owners.GetByCredentials(ctx, req.Username, hashPassword(req.Password))
	if err != nil {
		if errors.Is(err, serrors.ErrInvalidCredentials) || errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("the resource owner credentials are invalid")
		}
		return nil, err
	}
	if owner.IsBlocked {
		return nil, serrors.NewInvalidGrant("the resource owner account is blocked")
	}

	filter, err := s.accountFilter.Check(ctx, owner.Claims)
	if err != nil {
		return nil, err
	}
	if !filter.IsValid {
		s.logger.Info(ctx, "password grant rejected by account filter", map[string]any{
			"owner_id":     owner.ID,
			"rules_broken": filter.RulesBroken,
		})
		return nil, serrors.NewInvalidGrant("the resource owner account does not meet the access requirements")
	}

	if owner.TwoFactorEnabled {
		if req.MFACode == "" {
			if err := s.twoFactor.Begin(ctx, owner); err != nil {
				return nil, err
			}
			return nil, serrors.NewTwoFactorRequired()
		}
		if !s.twoFactor.Verify(owner.ID, req.MFACode) {
			return nil, serrors.NewInvalidGrant("the confirmation code is invalid")
		}
	}

	requested := splitScope(req.Scope)
	if !c.AllowsScopes(requested) {
		return nil, serrors.NewInvalidScope("the requested scope exceeds the scopes granted to the client")
	}

	opts := IssueOptions{
		ClientID:            c.ID,
		Subject:             owner.ID,
		Scope:               req.Scope,
		IncludeRefreshToken: c.AllowsGrantType(domain.GrantTypeRefreshToken),
	}
	if hasScope(req.Scope, "openid") {
		opts.IDTokenPayload = idTokenClaims(owner)
	}
	return s.tokens.Issue(ctx, opts)
}

func (s *GrantService) grantRefreshToken(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	if req.RefreshToken == "" {
		return nil, serrors.NewMissingParameter("refresh_token")
	}
	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.tokens.Refresh(ctx, req.RefreshToken, c.ID)
}

func (s *GrantService) grantDeviceCode(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	if req.DeviceCode == "" {
		return nil, serrors.NewMissingParameter("device_code")
	}
	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	auth, err := s.deviceCodes.GetByDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("the device code is invalid")
		}
		return nil, err
	}
	if auth.ClientID != c.ID {
		return nil, serrors.NewInvalidGrant("the device code was issued to another client")
	}

	now := time.Now().UTC()
	if now.After(auth.ExpiresAt) {
		return nil, &serrors.OAuth2Error{Code: serrors.ExpiredToken, Description: "the device code is expired"}
	}

	switch auth.Status {
	case domain.DeviceCodeStatusDenied:
		return nil, &serrors.OAuth2Error{Code: serrors.AccessDenied, Description: "the resource owner denied the request"}
	case domain.DeviceCodeStatusPending:
		if tooFast(auth, now) {
			return nil, &serrors.OAuth2Error{Code: serrors.SlowDown, Description: "polling too frequently"}
		}
		if err := s.deviceCodes.UpdateLastPolledAt(ctx, auth.DeviceCode, now); err != nil {
			s.logger.Warn(ctx, "failed to record device poll", map[string]any{"error": err.Error()})
		}
		return nil, serrors.NewAuthorizationPending()
	}

	consumed, err := s.deviceCodes.ConsumeApproved(ctx, req.DeviceCode)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) || errors.Is(err, serrors.ErrAlreadyConsumed) {
			return nil, serrors.NewInvalidGrant("the device code is invalid")
		}
		return nil, err
	}

	return s.tokens.Issue(ctx, IssueOptions{
		ClientID:            c.ID,
		Subject:             consumed.UserID,
		Scope:               consumed.Scope,
		IncludeRefreshToken: c.AllowsGrantType(domain.GrantTypeRefreshToken),
	})
}

func (s *GrantService) grantUMATicket(ctx context.Context, req *TokenRequest) (*domain.GrantedToken, error) {
	if req.Ticket == "" {
		return nil, serrors.NewMissingParameter("ticket")
	}
	c, err := s.AuthenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.GetTicket(ctx, req.Ticket)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, serrors.NewInvalidGrant("the ticket doesn't exist")
		}
		return nil, err
	}
	if ticket.IsExpired(time.Now().UTC()) {
		return nil, serrors.NewInvalidGrant("the ticket is expired")
	}

	claims, err := parseClaimToken(req.ClaimToken)
	if err != nil {
		return nil, serrors.NewInvalidRequest("the claim_token cannot be parsed")
	}

	decision, err := s.policy.Evaluate(ctx, ticket, c.ID, claims)
	if err != nil {
		return nil, err
	}

	switch decision.Kind {
	case DecisionAuthorized:
		if _, err := s.tickets.ConsumeTicket(ctx, ticket.ID); err != nil {
			if errors.Is(err, serrors.ErrNotFound) {
				// A concurrent redemption consumed the ticket first.
				return nil, serrors.NewInvalidGrant("the ticket doesn't exist")
			}
			return nil, err
		}
		return s.tokens.Issue(ctx, IssueOptions{
			ClientID:    c.ID,
			Subject:     c.ID,
			Scope:       permissionsScope(decision.Permissions),
			Permissions: decision.Permissions,
		})
	case DecisionNeedInfo:
		return nil, serrors.NewNeedInfo(ticket.ID, claimHints(decision.MissingClaims))
	case DecisionRequestSubmitted:
		return nil, serrors.NewRequestSubmitted(ticket.ID)
	default:
		return nil, serrors.NewInvalidGrant("the resource set policies deny the request")
	}
}

// parseClaimToken decodes a base64url claim token. Two shapes are accepted: a
// JSON array of {type,value,issuer} objects, or a flat JSON object whose
// entries become issuer-less claims.
func parseClaimToken(raw string) ([]domain.RequesterClaim, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, err
	}

	var structured []domain.RequesterClaim
	if err := json.Unmarshal(decoded, &structured); err == nil {
		return structured, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(decoded, &flat); err != nil {
		return nil, err
	}
	claims := make([]domain.RequesterClaim, 0, len(flat))
	for k, v := range flat {
		claims = append(claims, domain.RequesterClaim{Type: k, Value: v})
	}
	return claims, nil
}

func claimHints(missing []domain.ClaimRequirement) []serrors.ClaimHint {
	hints := make([]serrors.ClaimHint, 0, len(missing))
	for _, m := range missing {
		hints = append(hints, serrors.ClaimHint{
			Type:         m.Type,
			FriendlyName: m.Type,
			Issuer:       m.Issuer,
		})
	}
	return hints
}

// permissionsScope flattens the granted permissions into a space-joined scope
// string for the RPT response body.
func permissionsScope(perms []domain.Permission) string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range perms {
		for _, s := range p.Scopes {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return strings.Join(out, " ")
}

func tooFast(auth *domain.DeviceAuthorization, now time.Time) bool {
	if auth.LastPolledAt.IsZero() || auth.Interval <= 0 {
		return false
	}
	return now.Sub(auth.LastPolledAt) < time.Duration(auth.Interval)*time.Second
}

func idTokenClaims(owner *domain.ResourceOwner) map[string]string {
	claims := map[string]string{"preferred_username": owner.Login}
	for k, v := range owner.Claims {
		claims[k] = v
	}
	return claims
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func hasScope(scope, name string) bool {
	for _, s := range splitScope(scope) {
		if s == name {
			return true
		}
	}
	return false
}

func splitScope(scope string) []string {
	return strings.Fields(scope)
}
