package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/authz/domain"
	"go.pilab.hu/authz/errors"
)

// ClientRegistrationRequest is the dynamic registration body.
//
//nolint:tagliatelle
type ClientRegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	AllowedScopes           []string `json:"scope,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	ApplicationType         string   `json:"application_type,omitempty"`
	JwksURI                 string   `json:"jwks_uri,omitempty"`
	SectorIdentifierURI     string   `json:"sector_identifier_uri,omitempty"`
	InitiateLoginURI        string   `json:"initiate_login_uri,omitempty"`
}

// ClientRegistrationResponse returns the registration including the plaintext
// secret, shown exactly once.
//
//nolint:tagliatelle
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ApplicationType         string   `json:"application_type"`
}

// RegisterClientHandler implements dynamic client registration. A request
// with token_endpoint_auth_method "none" yields a public PKCE client,
// anything else a confidential one with a generated secret.
func (a *AuthzAPI) RegisterClientHandler(c echo.Context) error {
	var req ClientRegistrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be parsed"))
	}

	raw := &domain.Client{
		RedirectURIs:        req.RedirectURIs,
		AllowedScopes:       req.AllowedScopes,
		GrantTypes:          req.GrantTypes,
		ResponseTypes:       req.ResponseTypes,
		ApplicationKind:     domain.ApplicationType(req.ApplicationType),
		JwksURI:             req.JwksURI,
		SectorIdentifierURI: req.SectorIdentifierURI,
		InitiateLoginURI:    req.InitiateLoginURI,
	}

	ctx := c.Request().Context()

	var (
		built  *domain.Client
		secret string
		err    error
	)
	if req.TokenEndpointAuthMethod == domain.AuthMethodNone {
		built, err = a.clients.CreatePublicClient(ctx, raw)
	} else {
		built, secret, err = a.clients.CreateConfidentialClient(ctx, raw)
	}
	if err != nil {
		return writeOAuthError(c, err)
	}

	return c.JSON(http.StatusCreated, &ClientRegistrationResponse{
		ClientID:                built.ID,
		ClientSecret:            secret,
		RedirectURIs:            built.RedirectURIs,
		GrantTypes:              built.GrantTypes,
		ResponseTypes:           built.ResponseTypes,
		TokenEndpointAuthMethod: built.TokenEndpointAuthMethod,
		ApplicationType:         string(built.ApplicationKind),
	})
}
