package domain

import (
	"context"
	"time"
)

// ClientRepository provides access to client registrations.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type ClientRepository interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	// ValidateClient authenticates the client with its secret using a
	// constant-time comparison. Returns errors.ErrInvalidCredentials on
	// mismatch.
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*Client, error)
}

// TokenRepository stores granted tokens and enforces single-use refresh
// semantics.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *GrantedToken) error
	GetAccessToken(ctx context.Context, accessToken string) (*GrantedToken, error)
	GetRefreshToken(ctx context.Context, refreshToken string) (*GrantedToken, error)
	// GetByFingerprint finds a still-valid token for (clientID, scope) whose
	// stored payload fingerprints subset-match the candidates, enabling safe
	// reuse instead of minting.
	GetByFingerprint(ctx context.Context, clientID, scope string, idTokenPayload, userInfoPayload map[string]string) (*GrantedToken, error)
	RevokeAccessToken(ctx context.Context, accessToken string) error
	// RevokeRefreshToken invalidates the refresh token and every descendant
	// token whose ParentTokenID chain roots at it.
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
	// RotateRefreshToken atomically invalidates the old refresh token value
	// and persists the replacement token. After rotation the old value must
	// not be redeemable; concurrent rotations of the same value succeed at
	// most once.
	RotateRefreshToken(ctx context.Context, oldRefreshToken string, replacement *GrantedToken) error
}

// AuthCodeRepository stores authorization codes.
type AuthCodeRepository interface {
	SaveAuthCode(ctx context.Context, code *AuthCode) error
	// ConsumeAuthCode atomically loads and deletes the code. Of two racing
	// consumers exactly one receives the code; the other gets
	// errors.ErrNotFound.
	ConsumeAuthCode(ctx context.Context, code string) (*AuthCode, error)
}

// DeviceCodeRepository stores device authorization requests.
type DeviceCodeRepository interface {
	SaveDeviceAuth(ctx context.Context, auth *DeviceAuthorization) error
	GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceAuthorization, error)
	GetByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error)
	// Approve marks the request authorized by userID. Fails when the entry
	// is absent or no longer pending.
	Approve(ctx context.Context, userCode, userID string) error
	Deny(ctx context.Context, userCode string) error
	UpdateLastPolledAt(ctx context.Context, deviceCode string, at time.Time) error
	// ConsumeApproved atomically removes an approved entry and returns it.
	// Pending or missing entries are not consumed.
	ConsumeApproved(ctx context.Context, deviceCode string) (*DeviceAuthorization, error)
}

// TicketRepository stores UMA permission tickets.
type TicketRepository interface {
	SaveTicket(ctx context.Context, ticket *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	// ConsumeTicket atomically loads and deletes the ticket; used only when
	// the decision is Authorized.
	ConsumeTicket(ctx context.Context, id string) (*Ticket, error)
	// DeleteExpired removes all tickets with ExpiresAt <= now and returns
	// how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResourceSetRepository stores protected resource registrations.
type ResourceSetRepository interface {
	SaveResourceSet(ctx context.Context, rs *ResourceSet) error
	GetResourceSet(ctx context.Context, id string) (*ResourceSet, error)
	UpdateResourceSet(ctx context.Context, rs *ResourceSet) error
	DeleteResourceSet(ctx context.Context, id string) error
	SearchResourceSets(ctx context.Context, filter ResourceSetFilter) ([]*ResourceSet, error)
}

// ResourceSetFilter narrows a resource set search.
type ResourceSetFilter struct {
	Owner string
	Name  string
	Type  string
}

// ConsentRepository stores resource owner consents. Writes are idempotent
// upserts keyed by (subject, client, resource set).
type ConsentRepository interface {
	UpsertConsent(ctx context.Context, consent *Consent) error
	GetConsentsForGivenUser(ctx context.Context, subject string) ([]*Consent, error)
	RevokeConsent(ctx context.Context, subject, clientID string) error
}

// ScopeRepository lists the scopes the server knows about.
type ScopeRepository interface {
	GetAll(ctx context.Context) ([]*Scope, error)
	Get(ctx context.Context, name string) (*Scope, error)
	Save(ctx context.Context, scope *Scope) error
}

// ResourceOwnerRepository authenticates and resolves end users.
type ResourceOwnerRepository interface {
	// GetByCredentials resolves a user by login and hex-encoded SHA-256
	// password hash. Returns errors.ErrInvalidCredentials when no user
	// matches.
	GetByCredentials(ctx context.Context, login, passwordHash string) (*ResourceOwner, error)
	GetByID(ctx context.Context, id string) (*ResourceOwner, error)
	Create(ctx context.Context, owner *ResourceOwner) error
}
