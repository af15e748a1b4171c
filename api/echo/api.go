//nolint:varnamelen
package echo

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/authz/api"
	"go.pilab.hu/authz/client"
	"go.pilab.hu/authz/errors"
	"go.pilab.hu/authz/services"
)

// AuthzAPI wires the authorization server services to their HTTP endpoints.
type AuthzAPI struct {
	grants       *services.GrantService
	tokens       *services.TokenService
	devices      *services.DeviceService
	permissions  *services.PermissionService
	resourceSets *services.ResourceSetService
	policies     *services.PolicyEngine
	keys         *services.KeyResolver
	clients      *client.Service
	issuer       string
}

// NewAuthzAPI initializes the HTTP API.
func NewAuthzAPI(
	grants *services.GrantService,
	tokens *services.TokenService,
	devices *services.DeviceService,
	permissions *services.PermissionService,
	resourceSets *services.ResourceSetService,
	policies *services.PolicyEngine,
	keys *services.KeyResolver,
	clients *client.Service,
	issuer string,
) *AuthzAPI {
	return &AuthzAPI{
		grants:       grants,
		tokens:       tokens,
		devices:      devices,
		permissions:  permissions,
		resourceSets: resourceSets,
		policies:     policies,
		keys:         keys,
		clients:      clients,
		issuer:       issuer,
	}
}

// RegisterRoutes registers all endpoints.
func (a *AuthzAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/oauth2/token", a.TokenHandler)
	e.POST("/oauth2/introspect", a.IntrospectHandler)
	e.POST("/oauth2/revoke", a.RevokeHandler)
	e.POST("/oauth2/device_authorization", a.DeviceAuthorizationHandler)
	e.POST("/oauth2/register", a.RegisterClientHandler)

	e.POST("/rs/resource_set", a.CreateResourceSetHandler)
	e.GET("/rs/resource_set/:id", a.GetResourceSetHandler)
	e.PUT("/rs/resource_set/:id", a.UpdateResourceSetHandler)
	e.DELETE("/rs/resource_set/:id", a.DeleteResourceSetHandler)
	e.GET("/rs/resource_set/.search", a.SearchResourceSetsHandler)

	e.POST("/perm", a.PermissionHandler)

	e.POST("/consent", a.GrantConsentHandler)
	e.DELETE("/consent/:client_id", a.RevokeConsentHandler)

	e.GET("/.well-known/openid-configuration", a.OpenIDConfigurationHandler)
	e.GET("/.well-known/jwks.json", a.JWKSHandler)
}

// TokenHandler handles token endpoint requests. All branches of the grant
// dispatcher return typed errors, mapped 1:1 onto status codes and JSON
// bodies.
func (a *AuthzAPI) TokenHandler(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)

	req := &services.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,

		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		ResponseType: c.FormValue("response_type"),
		CodeVerifier: c.FormValue("code_verifier"),

		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
		MFACode:  c.FormValue("mfa_code"),

		RefreshToken: c.FormValue("refresh_token"),
		DeviceCode:   c.FormValue("device_code"),

		Ticket:           c.FormValue("ticket"),
		ClaimToken:       c.FormValue("claim_token"),
		ClaimTokenFormat: c.FormValue("claim_token_format"),

		Scope: c.FormValue("scope"),
	}

	token, err := a.grants.Grant(c.Request().Context(), req)
	if err != nil {
		return writeOAuthError(c, err)
	}

	log.Info().
		Str("client_id", clientID).
		Str("grant_type", req.GrantType).
		Str("token_id", token.ID).
		Msg("Token granted")

	return c.JSON(http.StatusOK, &api.TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		// A reused token has already spent part of its lifetime.
		ExpiresIn:    int(time.Until(token.ExpiresAt).Seconds()),
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		Scope:        token.Scope,
	})
}

// IntrospectHandler implements RFC 7662. Callers must authenticate; unknown
// or inactive tokens yield active=false with 200 OK.
func (a *AuthzAPI) IntrospectHandler(c echo.Context) error {
	if err := a.authenticateCaller(c); err != nil {
		return writeOAuthError(c, err)
	}

	token := c.FormValue("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, errors.NewMissingParameter("token"))
	}

	result := a.tokens.Introspect(c.Request().Context(), token, c.FormValue("token_type_hint"))
	return c.JSON(http.StatusOK, result)
}

// RevokeHandler implements RFC 7009. The server responds 200 OK even when the
// token was already invalid.
func (a *AuthzAPI) RevokeHandler(c echo.Context) error {
	if err := a.authenticateCaller(c); err != nil {
		return writeOAuthError(c, err)
	}

	token := c.FormValue("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, errors.NewMissingParameter("token"))
	}

	ctx := c.Request().Context()
	var err error
	if c.FormValue("token_type_hint") == "refresh_token" {
		err = a.tokens.RevokeRefreshToken(ctx, token)
	} else {
		if err = a.tokens.RevokeAccessToken(ctx, token); err != nil {
			err = a.tokens.RevokeRefreshToken(ctx, token)
		}
	}
	if err != nil {
		log.Debug().Err(err).Msg("Token revocation did not match a live token")
	}

	return c.JSON(http.StatusOK, echo.Map{})
}

// DeviceAuthorizationHandler starts an RFC 8628 device flow.
func (a *AuthzAPI) DeviceAuthorizationHandler(c echo.Context) error {
	clientID, _ := clientCredentials(c)

	auth, verificationURI, err := a.devices.Begin(c.Request().Context(), clientID, c.FormValue("scope"))
	if err != nil {
		return writeOAuthError(c, err)
	}

	return c.JSON(http.StatusOK, &api.DeviceAuthResponse{
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + auth.UserCode,
		ExpiresIn:               int(auth.ExpiresAt.Sub(auth.CreatedAt).Seconds()),
		Interval:                auth.Interval,
	})
}

// authenticateCaller validates the client credentials attached to a
// management request.
func (a *AuthzAPI) authenticateCaller(c echo.Context) error {
	clientID, clientSecret := clientCredentials(c)
	if clientID == "" {
		return errors.NewInvalidClient("client authentication required")
	}
	req := &services.TokenRequest{ClientID: clientID, ClientSecret: clientSecret}
	_, err := a.grants.AuthenticateClient(c.Request().Context(), req)
	return err
}

// clientCredentials reads the caller identity from HTTP Basic auth, falling
// back to form fields.
func clientCredentials(c echo.Context) (string, string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

// writeOAuthError maps a typed error onto its wire representation.
func writeOAuthError(c echo.Context, err error) error {
	var umaErr *errors.UMAError
	if stderrors.As(err, &umaErr) {
		return c.JSON(http.StatusForbidden, umaErr)
	}

	var oauthErr *errors.OAuth2Error
	if !stderrors.As(err, &oauthErr) {
		log.Error().Err(err).Msg("Unexpected failure while handling request")
		return c.JSON(http.StatusInternalServerError, errors.NewUnhandledException())
	}

	switch oauthErr.Code {
	case errors.InvalidClient:
		return c.JSON(http.StatusUnauthorized, oauthErr)
	case errors.ServerError, errors.UnhandledException:
		return c.JSON(http.StatusInternalServerError, oauthErr)
	default:
		return c.JSON(http.StatusBadRequest, oauthErr)
	}
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
