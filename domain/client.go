package domain

import "time"

// ApplicationType classifies an OAuth2 client per OIDC registration.
type ApplicationType string

const (
	ApplicationTypeWeb    ApplicationType = "web"
	ApplicationTypeNative ApplicationType = "native"
)

// Token endpoint authentication methods.
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"
)

// Client represents a registered OAuth2/OIDC client application. The ID is
// immutable once the registration is created.
//
//nolint:tagliatelle
type Client struct {
	ID              string          `bson:"client_id" json:"client_id"`
	Secret          string          `bson:"client_secret,omitempty" json:"client_secret,omitempty"`
	Name            string          `bson:"client_name,omitempty" json:"client_name,omitempty"`
	RedirectURIs    []string        `bson:"redirect_uris" json:"redirect_uris"`
	AllowedScopes   []string        `bson:"allowed_scopes,omitempty" json:"allowed_scopes,omitempty"`
	GrantTypes      []string        `bson:"grant_types,omitempty" json:"grant_types,omitempty"`
	ResponseTypes   []string        `bson:"response_types,omitempty" json:"response_types,omitempty"`
	ApplicationKind ApplicationType `bson:"application_type,omitempty" json:"application_type,omitempty"`

	TokenEndpointAuthMethod string `bson:"token_endpoint_auth_method,omitempty" json:"token_endpoint_auth_method,omitempty"`
	RequirePKCE             bool   `bson:"require_pkce" json:"require_pkce"`

	IDTokenSignedResponseAlg     string `bson:"id_token_signed_response_alg,omitempty" json:"id_token_signed_response_alg,omitempty"`
	IDTokenEncryptedResponseAlg  string `bson:"id_token_encrypted_response_alg,omitempty" json:"id_token_encrypted_response_alg,omitempty"`
	IDTokenEncryptedResponseEnc  string `bson:"id_token_encrypted_response_enc,omitempty" json:"id_token_encrypted_response_enc,omitempty"`
	UserInfoSignedResponseAlg    string `bson:"userinfo_signed_response_alg,omitempty" json:"userinfo_signed_response_alg,omitempty"`
	UserInfoEncryptedResponseAlg string `bson:"userinfo_encrypted_response_alg,omitempty" json:"userinfo_encrypted_response_alg,omitempty"`
	UserInfoEncryptedResponseEnc string `bson:"userinfo_encrypted_response_enc,omitempty" json:"userinfo_encrypted_response_enc,omitempty"`
	RequestObjectSigningAlg      string `bson:"request_object_signing_alg,omitempty" json:"request_object_signing_alg,omitempty"`
	RequestObjectEncryptionAlg   string `bson:"request_object_encryption_alg,omitempty" json:"request_object_encryption_alg,omitempty"`
	RequestObjectEncryptionEnc   string `bson:"request_object_encryption_enc,omitempty" json:"request_object_encryption_enc,omitempty"`

	// JSONWebKeys and JwksURI are mutually exclusive.
	JSONWebKeys *JSONWebKeySet `bson:"jwks,omitempty" json:"jwks,omitempty"`
	JwksURI     string         `bson:"jwks_uri,omitempty" json:"jwks_uri,omitempty"`

	SectorIdentifierURI string `bson:"sector_identifier_uri,omitempty" json:"sector_identifier_uri,omitempty"`
	InitiateLoginURI    string `bson:"initiate_login_uri,omitempty" json:"initiate_login_uri,omitempty"`

	LogoURI   string    `bson:"logo_uri,omitempty" json:"logo_uri,omitempty"`
	PolicyURI string    `bson:"policy_uri,omitempty" json:"policy_uri,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
}

// AllowsGrantType reports whether the client registration permits gt.
func (c *Client) AllowsGrantType(gt string) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri is one of the registered callbacks.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is registered.
func (c *Client) AllowsScopes(requested []string) bool {
	allowed := make(map[string]struct{}, len(c.AllowedScopes))
	for _, s := range c.AllowedScopes {
		allowed[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}
