package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

// Supported JWE algorithms for encrypted id_token/userinfo/request-object
// responses.
var supportedEncryptionAlgs = map[string]struct{}{
	"RSA1_5":       {},
	"RSA-OAEP":     {},
	"RSA-OAEP-256": {},
	"A128KW":       {},
	"A256KW":       {},
}

// Factory normalizes and validates client registration data. Build applies
// the validation rules in a fixed order so error messages stay deterministic.
type Factory struct {
	scopes domain.ScopeRepository
	sector SectorIdentifierFetcher
}

// NewFactory creates a client factory. The sector fetcher resolves
// sector_identifier_uri documents; pass an HTTPSectorFetcher in production.
func NewFactory(scopes domain.ScopeRepository, sector SectorIdentifierFetcher) *Factory {
	return &Factory{scopes: scopes, sector: sector}
}

// Build validates raw registration data and returns the normalized client.
// Expected failures are typed *errors.OAuth2Error values.
//
//nolint:cyclop
func (f *Factory) Build(ctx context.Context, raw *domain.Client) (*domain.Client, error) {
	c := *raw

	if len(c.RedirectURIs) == 0 {
		return nil, serrors.NewMissingParameter("redirect_uris")
	}
	for _, uri := range c.RedirectURIs {
		if containsFragment(uri) {
			return nil, serrors.NewInvalidRedirectURI(uri)
		}
	}

	if c.JSONWebKeys != nil && c.JwksURI != "" {
		return nil, serrors.NewInvalidClientMetadata("the jwks cannot be set because jwks_uri is used")
	}

	if len(c.ResponseTypes) == 0 {
		c.ResponseTypes = []string{"code"}
	}
	if len(c.GrantTypes) == 0 {
		c.GrantTypes = []string{domain.GrantTypeAuthorizationCode}
	}
	if c.ApplicationKind == "" {
		c.ApplicationKind = domain.ApplicationTypeWeb
	}

	if err := checkEncryptionPair("id_token", c.IDTokenEncryptedResponseEnc, c.IDTokenEncryptedResponseAlg); err != nil {
		return nil, err
	}
	if err := checkEncryptionPair("userinfo", c.UserInfoEncryptedResponseEnc, c.UserInfoEncryptedResponseAlg); err != nil {
		return nil, err
	}
	if err := checkEncryptionPair("request_object", c.RequestObjectEncryptionEnc, c.RequestObjectEncryptionAlg); err != nil {
		return nil, err
	}

	if c.SectorIdentifierURI != "" {
		if err := f.checkSectorIdentifier(ctx, &c); err != nil {
			return nil, err
		}
	}

	if c.InitiateLoginURI != "" && !isHTTPS(c.InitiateLoginURI) {
		return nil, serrors.NewInvalidClientMetadata("the initiate_login_uri must use the https scheme")
	}

	if len(c.AllowedScopes) > 0 {
		if err := f.checkScopes(ctx, c.AllowedScopes); err != nil {
			return nil, err
		}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.IsActive = true

	return &c, nil
}

func (f *Factory) checkSectorIdentifier(ctx context.Context, c *domain.Client) error {
	if !isHTTPS(c.SectorIdentifierURI) {
		return serrors.NewInvalidClientMetadata("the sector_identifier_uri must use the https scheme")
	}

	uris, err := f.sector.Fetch(ctx, c.SectorIdentifierURI)
	if err != nil {
		return serrors.NewInvalidClientMetadata("the sector identifier uris cannot be retrieved")
	}

	known := make(map[string]struct{}, len(uris))
	for _, u := range uris {
		known[u] = struct{}{}
	}
	for _, u := range c.RedirectURIs {
		if _, ok := known[u]; !ok {
			return serrors.NewInvalidClientMetadata("one or more sector identifier uri is not a redirect uri")
		}
	}
	return nil
}

func (f *Factory) checkScopes(ctx context.Context, names []string) error {
	var unknown []string
	for _, name := range names {
		if _, err := f.scopes.Get(ctx, name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return serrors.NewUnknownScopes(unknown)
	}
	return nil
}

func checkEncryptionPair(field, enc, alg string) error {
	if enc == "" {
		return nil
	}
	if alg == "" {
		return serrors.NewInvalidClientMetadata(
			fmt.Sprintf("the %s_encrypted_response_alg must be set when %s_encrypted_response_enc is used", field, field))
	}
	if _, ok := supportedEncryptionAlgs[alg]; !ok {
		return serrors.NewInvalidClientMetadata(
			fmt.Sprintf("the %s_encrypted_response_alg %s is not supported", field, alg))
	}
	return nil
}

// containsFragment reports whether the redirect URI carries a fragment part.
// A bare trailing '#' counts as well, per the registration rules.
func containsFragment(uri string) bool {
	if strings.Contains(uri, "#") {
		return true
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Fragment != ""
}

func isHTTPS(uri string) bool {
	parsed, err := url.Parse(uri)
	return err == nil && parsed.Scheme == "https"
}
