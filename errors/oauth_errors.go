package errors

import (
	"errors"
	"fmt"
	"strings"
)

// OAuth2Error represents a standardized OAuth 2.0 error response body.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 / OIDC registration error codes.
const (
	InvalidRequest        = "invalid_request"
	UnauthorizedClient    = "unauthorized_client"
	AccessDenied          = "access_denied"
	UnsupportedGrantType  = "unsupported_grant_type"
	InvalidScope          = "invalid_scope"
	InvalidClient         = "invalid_client"
	InvalidGrant          = "invalid_grant"
	InvalidRedirectURI    = "invalid_redirect_uri"
	InvalidClientMetadata = "invalid_client_metadata"
	ServerError           = "server_error"
	UnhandledException    = "unhandled_exception"
	AuthorizationPending  = "authorization_pending"
	SlowDown              = "slow_down"
	ExpiredToken          = "expired_token"
	InteractionRequired   = "interaction_required"
)

// UMA 2.0 grant error codes.
const (
	NeedInfo         = "need_info"
	RequestSubmitted = "request_submitted"
	NotAuthorized    = "not_authorized"
)

// Sentinel errors surfaced by stores. Repositories return these so the grant
// dispatcher can map them onto the wire taxonomy.
var (
	ErrNotFound              = errors.New("record not found")
	ErrAlreadyConsumed       = errors.New("artifact already consumed")
	ErrTokenExpiredOrRevoked = errors.New("token expired or revoked")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

// NewMissingParameter reports a required token-request field that was absent.
func NewMissingParameter(name string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: fmt.Sprintf("the parameter %s is missing", name),
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

// NewUnknownScopes lists scope names absent from the scope repository.
func NewUnknownScopes(names []string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidScope,
		Description: "Unknown scopes: " + strings.Join(names, ","),
	}
}

func NewInvalidRedirectURI(uri string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRedirectURI,
		Description: fmt.Sprintf("The redirect_uri %s cannot contain fragment", uri),
	}
}

func NewInvalidClientMetadata(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClientMetadata, Description: description}
}

func NewUnauthorizedClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: UnauthorizedClient, Description: description}
}

func NewUnsupportedGrantType(grantType string) *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: fmt.Sprintf("the grant type %s is not supported", grantType),
	}
}

func NewAuthorizationPending() *OAuth2Error {
	return &OAuth2Error{
		Code:        AuthorizationPending,
		Description: "the authorization request is still pending",
	}
}

func NewTwoFactorRequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        InteractionRequired,
		Description: "a confirmation code is required to complete the authentication",
	}
}

// NewServerError wraps an unexpected failure. The description stays generic,
// the underlying error is for logs only.
func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

func NewUnhandledException() *OAuth2Error {
	return &OAuth2Error{Code: UnhandledException, Description: "an internal error occurred"}
}

// ClaimHint tells an UMA requester which claim to obtain and where from.
type ClaimHint struct {
	Type         string `json:"claim_type"`
	FriendlyName string `json:"claim_friendly_name,omitempty"`
	TokenFormat  string `json:"claim_token_format,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
}

// UMAError decorates an OAuth2 error with UMA grant hints: the (re)issued
// ticket the requester should resubmit, the claims it still has to gather and
// an optional interactive claims-gathering endpoint.
type UMAError struct {
	OAuth2Error
	Ticket         string      `json:"ticket,omitempty"`
	RequiredClaims []ClaimHint `json:"required_claims,omitempty"`
	RedirectUser   string      `json:"redirect_user,omitempty"`
}

func NewNeedInfo(ticket string, claims []ClaimHint) *UMAError {
	return &UMAError{
		OAuth2Error: OAuth2Error{
			Code:        NeedInfo,
			Description: "the authorization server needs additional claims to reach a decision",
		},
		Ticket:         ticket,
		RequiredClaims: claims,
	}
}

func NewRequestSubmitted(ticket string) *UMAError {
	return &UMAError{
		OAuth2Error: OAuth2Error{
			Code:        RequestSubmitted,
			Description: "the permission request awaits resource owner consent",
		},
		Ticket: ticket,
	}
}

func NewNotAuthorized() *UMAError {
	return &UMAError{
		OAuth2Error: OAuth2Error{
			Code:        NotAuthorized,
			Description: "the resource set policies deny the request",
		},
	}
}
