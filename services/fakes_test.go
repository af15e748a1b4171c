package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	applog "go.pilab.hu/authz/log"
)

func testLogger() applog.Logger {
	return applog.NewZerologAdapter(zerolog.Disabled, false)
}

// --- in-memory repository fakes ---

type memClientRepo struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
	secrets map[string]string
}

func newMemClientRepo() *memClientRepo {
	return &memClientRepo{
		clients: make(map[string]*domain.Client),
		secrets: make(map[string]string),
	}
}

func (r *memClientRepo) add(c *domain.Client, secret string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
	r.secrets[c.ID] = secret
}

func (r *memClientRepo) CreateClient(_ context.Context, c *domain.Client) error {
	r.add(c, c.Secret)
	return nil
}

func (r *memClientRepo) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return c, nil
}

func (r *memClientRepo) UpdateClient(_ context.Context, c *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return serrors.ErrNotFound
	}
	r.clients[c.ID] = c
	return nil
}

func (r *memClientRepo) DeleteClient(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
	return nil
}

func (r *memClientRepo) ValidateClient(_ context.Context, clientID, clientSecret string) (*domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	if r.secrets[clientID] != clientSecret {
		return nil, serrors.ErrInvalidCredentials
	}
	return c, nil
}

type memOwnerRepo struct {
	mu     sync.Mutex
	owners map[string]*domain.ResourceOwner
}

func newMemOwnerRepo() *memOwnerRepo {
	return &memOwnerRepo{owners: make(map[string]*domain.ResourceOwner)}
}

func (r *memOwnerRepo) add(o *domain.ResourceOwner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[o.ID] = o
}

func (r *memOwnerRepo) GetByCredentials(_ context.Context, login, passwordHash string) (*domain.ResourceOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if o.Login == login && o.PasswordHash == passwordHash {
			return o, nil
		}
	}
	return nil, serrors.ErrInvalidCredentials
}

func (r *memOwnerRepo) GetByID(_ context.Context, id string) (*domain.ResourceOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return o, nil
}

func (r *memOwnerRepo) Create(_ context.Context, o *domain.ResourceOwner) error {
	r.add(o)
	return nil
}

type memAuthCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthCode
}

func newMemAuthCodeRepo() *memAuthCodeRepo {
	return &memAuthCodeRepo{codes: make(map[string]*domain.AuthCode)}
}

func (r *memAuthCodeRepo) SaveAuthCode(_ context.Context, code *domain.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Code] = code
	return nil
}

func (r *memAuthCodeRepo) ConsumeAuthCode(_ context.Context, code string) (*domain.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	delete(r.codes, code)
	return c, nil
}

type memDeviceCodeRepo struct {
	mu    sync.Mutex
	auths map[string]*domain.DeviceAuthorization
}

func newMemDeviceCodeRepo() *memDeviceCodeRepo {
	return &memDeviceCodeRepo{auths: make(map[string]*domain.DeviceAuthorization)}
}

func (r *memDeviceCodeRepo) SaveDeviceAuth(_ context.Context, auth *domain.DeviceAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auths[auth.DeviceCode] = auth
	return nil
}

func (r *memDeviceCodeRepo) GetByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auths[deviceCode]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return a, nil
}

func (r *memDeviceCodeRepo) GetByUserCode(_ context.Context, userCode string) (*domain.DeviceAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.auths {
		if a.UserCode == userCode {
			return a, nil
		}
	}
	return nil, serrors.ErrNotFound
}

func (r *memDeviceCodeRepo) Approve(_ context.Context, userCode, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.auths {
		if a.UserCode == userCode && a.Status == domain.DeviceCodeStatusPending {
			a.Status = domain.DeviceCodeStatusAuthorized
			a.UserID = userID
			return nil
		}
	}
	return serrors.ErrNotFound
}

func (r *memDeviceCodeRepo) Deny(_ context.Context, userCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.auths {
		if a.UserCode == userCode && a.Status == domain.DeviceCodeStatusPending {
			a.Status = domain.DeviceCodeStatusDenied
			return nil
		}
	}
	return serrors.ErrNotFound
}

func (r *memDeviceCodeRepo) UpdateLastPolledAt(_ context.Context, deviceCode string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auths[deviceCode]
	if !ok {
		return serrors.ErrNotFound
	}
	a.LastPolledAt = at
	return nil
}

func (r *memDeviceCodeRepo) ConsumeApproved(_ context.Context, deviceCode string) (*domain.DeviceAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auths[deviceCode]
	if !ok || a.Status != domain.DeviceCodeStatusAuthorized {
		return nil, serrors.ErrNotFound
	}
	delete(r.auths, deviceCode)
	return a, nil
}

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) SaveTicket(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *memTicketRepo) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return t, nil
}

func (r *memTicketRepo) ConsumeTicket(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	delete(r.tickets, id)
	return t, nil
}

func (r *memTicketRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for id, t := range r.tickets {
		if !t.ExpiresAt.After(now) {
			delete(r.tickets, id)
			swept++
		}
	}
	return swept, nil
}

type memResourceSetRepo struct {
	mu   sync.Mutex
	sets map[string]*domain.ResourceSet
}

func newMemResourceSetRepo() *memResourceSetRepo {
	return &memResourceSetRepo{sets: make(map[string]*domain.ResourceSet)}
}

func (r *memResourceSetRepo) SaveResourceSet(_ context.Context, rs *domain.ResourceSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[rs.ID] = rs
	return nil
}

func (r *memResourceSetRepo) GetResourceSet(_ context.Context, id string) (*domain.ResourceSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.sets[id]
	if !ok {
		return nil, serrors.ErrNotFound
	}
	return rs, nil
}

func (r *memResourceSetRepo) UpdateResourceSet(_ context.Context, rs *domain.ResourceSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[rs.ID]; !ok {
		return serrors.ErrNotFound
	}
	r.sets[rs.ID] = rs
	return nil
}

func (r *memResourceSetRepo) DeleteResourceSet(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[id]; !ok {
		return serrors.ErrNotFound
	}
	delete(r.sets, id)
	return nil
}

func (r *memResourceSetRepo) SearchResourceSets(_ context.Context, filter domain.ResourceSetFilter) ([]*domain.ResourceSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ResourceSet
	for _, rs := range r.sets {
		if filter.Owner != "" && rs.Owner != filter.Owner {
			continue
		}
		if filter.Name != "" && rs.Name != filter.Name {
			continue
		}
		if filter.Type != "" && rs.Type != filter.Type {
			continue
		}
		out = append(out, rs)
	}
	return out, nil
}

type memConsentRepo struct {
	mu       sync.Mutex
	consents []*domain.Consent
}

func newMemConsentRepo() *memConsentRepo {
	return &memConsentRepo{}
}

func (r *memConsentRepo) UpsertConsent(_ context.Context, consent *domain.Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.consents {
		if c.Subject == consent.Subject && c.ClientID == consent.ClientID && c.ResourceSetID == consent.ResourceSetID {
			r.consents[i] = consent
			return nil
		}
	}
	r.consents = append(r.consents, consent)
	return nil
}

func (r *memConsentRepo) GetConsentsForGivenUser(_ context.Context, subject string) ([]*domain.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Consent
	for _, c := range r.consents {
		if c.Subject == subject {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memConsentRepo) RevokeConsent(_ context.Context, subject, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.consents {
		if c.Subject == subject && c.ClientID == clientID {
			c.RevokedAt = time.Now().UTC()
		}
	}
	return nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.GrantedToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*domain.GrantedToken)}
}

func (r *memTokenRepo) StoreToken(_ context.Context, token *domain.GrantedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *memTokenRepo) GetAccessToken(_ context.Context, accessToken string) (*domain.GrantedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessToken == accessToken {
			return t, nil
		}
	}
	return nil, serrors.ErrNotFound
}

func (r *memTokenRepo) GetRefreshToken(_ context.Context, refreshToken string) (*domain.GrantedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.findByRefreshLocked(refreshToken)
	if t == nil {
		return nil, serrors.ErrNotFound
	}
	return t, nil
}

func (r *memTokenRepo) GetByFingerprint(_ context.Context, clientID, scope string, idTokenPayload, userInfoPayload map[string]string) (*domain.GrantedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range r.tokens {
		if t.ClientID != clientID || t.Scope != scope {
			continue
		}
		if t.IsRevoked || t.IsExpired(now) {
			continue
		}
		if t.MatchesPayloads(idTokenPayload, userInfoPayload) {
			return t, nil
		}
	}
	return nil, serrors.ErrNotFound
}

func (r *memTokenRepo) RevokeAccessToken(_ context.Context, accessToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessToken == accessToken {
			t.IsRevoked = true
			return nil
		}
	}
	return serrors.ErrNotFound
}

func (r *memTokenRepo) RevokeRefreshToken(_ context.Context, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	root := r.findByRefreshLocked(refreshToken)
	if root == nil {
		return serrors.ErrNotFound
	}
	root.IsRevoked = true
	frontier := []string{root.ID}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, t := range r.tokens {
			for _, parent := range frontier {
				if t.ParentTokenID == parent {
					t.IsRevoked = true
					next = append(next, t.ID)
				}
			}
		}
		frontier = next
	}
	return nil
}

func (r *memTokenRepo) RotateRefreshToken(_ context.Context, oldRefreshToken string, replacement *domain.GrantedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.findByRefreshLocked(oldRefreshToken)
	if old == nil {
		return serrors.ErrNotFound
	}
	if old.IsRevoked {
		return serrors.ErrAlreadyConsumed
	}
	old.IsRevoked = true
	r.tokens[replacement.ID] = replacement
	return nil
}

func (r *memTokenRepo) findByRefreshLocked(refreshToken string) *domain.GrantedToken {
	for _, t := range r.tokens {
		if t.RefreshToken == refreshToken {
			return t
		}
	}
	return nil
}

// captureNotifier records the codes sent to owners.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) SendCode(_ context.Context, owner *domain.ResourceOwner, code string) error {
	if n.err != nil {
		return n.err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[owner.ID] = code
	return nil
}

func (n *captureNotifier) lastCode(ownerID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[ownerID]
}
