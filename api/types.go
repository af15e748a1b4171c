// Package api holds the wire DTOs of the authorization server endpoints.
package api

// TokenResponse is the success body of the token endpoint.
//
//nolint:tagliatelle
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// DeviceAuthResponse is the body of the device authorization endpoint
// (RFC 8628 section 3.2).
//
//nolint:tagliatelle
type DeviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// IntrospectionResponse is the RFC 7662 introspection body.
//
//nolint:tagliatelle
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Nbf       int64  `json:"nbf,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Jti       string `json:"jti,omitempty"`
}

// ResourceSetRequest is the add/update body of the resource set endpoint.
//
//nolint:tagliatelle
type ResourceSetRequest struct {
	ID      string   `json:"_id,omitempty"`
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Scopes  []string `json:"scopes"`
	IconURI string   `json:"icon_uri,omitempty"`
	Owner   string   `json:"owner,omitempty"`
}

// ResourceSetResponse is the resource set representation returned to
// requesters.
//
//nolint:tagliatelle
type ResourceSetResponse struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Scopes  []string `json:"scopes"`
	IconURI string   `json:"icon_uri,omitempty"`
}

// PermissionRequest asks for a ticket over one resource set.
//
//nolint:tagliatelle
type PermissionRequest struct {
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// TicketResponse carries the ticket issued for a single permission request.
//
//nolint:tagliatelle
type TicketResponse struct {
	TicketID string `json:"ticket_id"`
}

// TicketsResponse carries the tickets issued for a batched permission
// request.
//
//nolint:tagliatelle
type TicketsResponse struct {
	TicketIDs []string `json:"ticket_ids"`
}

// ConsentRequest records the resource owner's consent for a client.
//
//nolint:tagliatelle
type ConsentRequest struct {
	ClientID      string   `json:"client_id"`
	Scopes        []string `json:"scopes,omitempty"`
	Claims        []string `json:"claims,omitempty"`
	ResourceSetID string   `json:"resource_set_id,omitempty"`
}
