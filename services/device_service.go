package services

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	applog "go.pilab.hu/authz/log"
)

// userCodeAlphabet omits easily confused characters (0/O, 1/I).
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// DeviceService starts and settles device authorization flows.
type DeviceService struct {
	deviceCodes domain.DeviceCodeRepository
	clients     domain.ClientRepository
	logger      applog.Logger

	verificationURI string
	codeTTL         time.Duration
	pollInterval    time.Duration
}

// NewDeviceService creates a DeviceService. verificationURI is the page the
// end user opens to enter the user code.
func NewDeviceService(
	deviceCodes domain.DeviceCodeRepository,
	clients domain.ClientRepository,
	verificationURI string,
	codeTTL, pollInterval time.Duration,
	logger applog.Logger,
) *DeviceService {
	return &DeviceService{
		deviceCodes:     deviceCodes,
		clients:         clients,
		logger:          logger,
		verificationURI: verificationURI,
		codeTTL:         codeTTL,
		pollInterval:    pollInterval,
	}
}

// Begin registers a new device authorization request for the client.
func (s *DeviceService) Begin(ctx context.Context, clientID, scope string) (*domain.DeviceAuthorization, string, error) {
	if clientID == "" {
		return nil, "", serrors.NewMissingParameter("client_id")
	}
	c, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, serrors.ErrNotFound) {
			return nil, "", serrors.NewInvalidClient("the client is unknown")
		}
		return nil, "", err
	}
	if !c.AllowsGrantType(domain.GrantTypeDeviceCode) && !c.AllowsGrantType(domain.GrantTypeDeviceCodeRFC8628) {
		return nil, "", serrors.NewUnauthorizedClient("the client may not use the device authorization grant")
	}

	userCode, err := generateUserCode()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	auth := &domain.DeviceAuthorization{
		DeviceCode: uuid.NewString(),
		UserCode:   userCode,
		ClientID:   clientID,
		Scope:      scope,
		Status:     domain.DeviceCodeStatusPending,
		ExpiresAt:  now.Add(s.codeTTL),
		Interval:   int(s.pollInterval.Seconds()),
		CreatedAt:  now,
	}
	if err := s.deviceCodes.SaveDeviceAuth(ctx, auth); err != nil {
		return nil, "", err
	}

	s.logger.Info(ctx, "device authorization started", map[string]any{
		"client_id": clientID,
		"user_code": userCode,
	})
	return auth, s.verificationURI, nil
}

// Approve settles a pending request positively on behalf of userID.
func (s *DeviceService) Approve(ctx context.Context, userCode, userID string) error {
	return s.deviceCodes.Approve(ctx, userCode, userID)
}

// Deny settles a pending request negatively.
func (s *DeviceService) Deny(ctx context.Context, userCode string) error {
	return s.deviceCodes.Deny(ctx, userCode)
}

// generateUserCode produces a XXXX-XXXX code over a confusion-free alphabet.
func generateUserCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, userCodeAlphabet[int(b)%len(userCodeAlphabet)])
	}
	return string(code), nil
}
