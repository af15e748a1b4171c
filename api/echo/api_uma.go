package echo

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/authz/api"
	"go.pilab.hu/authz/domain"
	"go.pilab.hu/authz/errors"
)

// resourceSetOwner resolves the caller of a resource set request from its
// bearer token (the protection API token of the resource server).
func (a *AuthzAPI) resourceSetOwner(c echo.Context) (string, error) {
	token, ok := bearerToken(c)
	if !ok {
		return "", errors.NewInvalidClient("a bearer token is required")
	}
	granted, err := a.tokens.ValidateAccessToken(c.Request().Context(), token)
	if err != nil {
		return "", errors.NewInvalidClient("the bearer token is invalid")
	}
	return granted.UserID, nil
}

// CreateResourceSetHandler registers a protected resource.
func (a *AuthzAPI) CreateResourceSetHandler(c echo.Context) error {
	owner, err := a.resourceSetOwner(c)
	if err != nil {
		return writeOAuthError(c, err)
	}

	var req api.ResourceSetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be parsed"))
	}

	rs, err := a.resourceSets.Create(c.Request().Context(), owner, &domain.ResourceSet{
		Name:    req.Name,
		Type:    req.Type,
		Scopes:  req.Scopes,
		IconURI: req.IconURI,
	})
	if err != nil {
		return writeOAuthError(c, err)
	}

	return c.JSON(http.StatusCreated, toResourceSetResponse(rs))
}

// GetResourceSetHandler returns one resource set.
func (a *AuthzAPI) GetResourceSetHandler(c echo.Context) error {
	rs, err := a.resourceSets.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errors.NewInvalidRequest("the resource set is unknown"))
		}
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceSetResponse(rs))
}

// UpdateResourceSetHandler replaces a resource set registration.
func (a *AuthzAPI) UpdateResourceSetHandler(c echo.Context) error {
	if _, err := a.resourceSetOwner(c); err != nil {
		return writeOAuthError(c, err)
	}

	var req api.ResourceSetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be parsed"))
	}

	rs, err := a.resourceSets.Update(c.Request().Context(), c.Param("id"), &domain.ResourceSet{
		Name:    req.Name,
		Type:    req.Type,
		Scopes:  req.Scopes,
		IconURI: req.IconURI,
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errors.NewInvalidRequest("the resource set is unknown"))
		}
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, toResourceSetResponse(rs))
}

// DeleteResourceSetHandler removes a resource set.
func (a *AuthzAPI) DeleteResourceSetHandler(c echo.Context) error {
	if _, err := a.resourceSetOwner(c); err != nil {
		return writeOAuthError(c, err)
	}
	if err := a.resourceSets.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeOAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchResourceSetsHandler searches resource sets by owner, name and type.
func (a *AuthzAPI) SearchResourceSetsHandler(c echo.Context) error {
	if _, err := a.resourceSetOwner(c); err != nil {
		return writeOAuthError(c, err)
	}

	filter := domain.ResourceSetFilter{
		Owner: c.QueryParam("owner"),
		Name:  c.QueryParam("name"),
		Type:  c.QueryParam("type"),
	}

	results, err := a.resourceSets.Search(c.Request().Context(), filter)
	if err != nil {
		return writeOAuthError(c, err)
	}

	responses := make([]*api.ResourceSetResponse, 0, len(results))
	for _, rs := range results {
		responses = append(responses, toResourceSetResponse(rs))
	}
	return c.JSON(http.StatusOK, responses)
}

// PermissionHandler creates permission tickets. A single request body yields
// {ticket_id}; a JSON array yields {ticket_ids} with one ticket per entry.
func (a *AuthzAPI) PermissionHandler(c echo.Context) error {
	if _, err := a.resourceSetOwner(c); err != nil {
		return writeOAuthError(c, err)
	}

	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be read"))
	}

	var batch []api.PermissionRequest
	if err := json.Unmarshal(body, &batch); err == nil {
		ids := make([]string, 0, len(batch))
		for _, req := range batch {
			ticket, err := a.permissions.CreateTicket(ctx, []domain.TicketLine{{
				ResourceSetID: req.ResourceSetID,
				Scopes:        req.Scopes,
			}})
			if err != nil {
				return writeOAuthError(c, err)
			}
			ids = append(ids, ticket.ID)
		}
		return c.JSON(http.StatusCreated, &api.TicketsResponse{TicketIDs: ids})
	}

	var single api.PermissionRequest
	if err := json.Unmarshal(body, &single); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be parsed"))
	}

	ticket, err := a.permissions.CreateTicket(ctx, []domain.TicketLine{{
		ResourceSetID: single.ResourceSetID,
		Scopes:        single.Scopes,
	}})
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, &api.TicketResponse{TicketID: ticket.ID})
}

// GrantConsentHandler records the authenticated owner's consent for a
// client, unblocking rules that gate on resource owner consent.
func (a *AuthzAPI) GrantConsentHandler(c echo.Context) error {
	subject, err := a.resourceSetOwner(c)
	if err != nil {
		return writeOAuthError(c, err)
	}

	var req api.ConsentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("the request body cannot be parsed"))
	}

	consent := &domain.Consent{
		Subject:       subject,
		ClientID:      req.ClientID,
		Scopes:        req.Scopes,
		Claims:        req.Claims,
		ResourceSetID: req.ResourceSetID,
	}
	if err := a.policies.GrantConsent(c.Request().Context(), consent); err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusCreated, consent)
}

// RevokeConsentHandler withdraws the authenticated owner's consent for a
// client.
func (a *AuthzAPI) RevokeConsentHandler(c echo.Context) error {
	subject, err := a.resourceSetOwner(c)
	if err != nil {
		return writeOAuthError(c, err)
	}
	if err := a.policies.RevokeConsent(c.Request().Context(), subject, c.Param("client_id")); err != nil {
		return writeOAuthError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toResourceSetResponse(rs *domain.ResourceSet) *api.ResourceSetResponse {
	return &api.ResourceSetResponse{
		ID:      rs.ID,
		Name:    rs.Name,
		Type:    rs.Type,
		Scopes:  rs.Scopes,
		IconURI: rs.IconURI,
	}
}
