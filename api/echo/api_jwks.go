package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// JWKSHandler serves the public key set for token verification.
func (a *AuthzAPI) JWKSHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, a.keys.JWKS())
}

// OpenIDConfigurationHandler serves the discovery document.
func (a *AuthzAPI) OpenIDConfigurationHandler(c echo.Context) error {
	issuer := a.issuer
	if issuer == "" {
		issuer = c.Scheme() + "://" + c.Request().Host
	}

	return c.JSON(http.StatusOK, echo.Map{
		"issuer":                                issuer,
		"token_endpoint":                        issuer + "/oauth2/token",
		"introspection_endpoint":                issuer + "/oauth2/introspect",
		"revocation_endpoint":                   issuer + "/oauth2/revoke",
		"device_authorization_endpoint":         issuer + "/oauth2/device_authorization",
		"jwks_uri":                              issuer + "/.well-known/jwks.json",
		"resource_registration_endpoint":        issuer + "/rs/resource_set",
		"permission_endpoint":                   issuer + "/perm",
		"grant_types_supported":                 supportedGrantTypes,
		"response_types_supported":              []string{"code"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post", "none"},
		"code_challenge_methods_supported":      []string{"plain", "S256"},
	})
}

var supportedGrantTypes = []string{
	"authorization_code",
	"client_credentials",
	"password",
	"refresh_token",
	"urn:ietf:params:oauth:device_code",
	"urn:ietf:params:oauth:grant-type:device_code",
	"urn:ietf:params:oauth:grant-type:uma-ticket",
}
