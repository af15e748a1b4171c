package client

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/authz/domain"
)

const secretLength = 32

// Service manages client registrations on top of the Factory and the client
// repository. Secrets are stored bcrypt-hashed; the plaintext is returned
// exactly once, at creation or rotation.
type Service struct {
	factory *Factory
	repo    domain.ClientRepository
}

// NewService creates a client management service.
func NewService(factory *Factory, repo domain.ClientRepository) *Service {
	return &Service{factory: factory, repo: repo}
}

// CreateConfidentialClient registers a confidential client and returns it
// together with the generated plaintext secret.
func (s *Service) CreateConfidentialClient(ctx context.Context, raw *domain.Client) (*domain.Client, string, error) {
	raw.TokenEndpointAuthMethod = domain.AuthMethodClientSecretBasic

	built, err := s.factory.Build(ctx, raw)
	if err != nil {
		return nil, "", err
	}

	secret := generateSecret(secretLength)
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	built.Secret = string(hashed)

	if err := s.repo.CreateClient(ctx, built); err != nil {
		return nil, "", err
	}
	return built, secret, nil
}

// CreatePublicClient registers a public client. Public clients carry no
// secret and always require PKCE.
func (s *Service) CreatePublicClient(ctx context.Context, raw *domain.Client) (*domain.Client, error) {
	raw.TokenEndpointAuthMethod = domain.AuthMethodNone
	raw.RequirePKCE = true

	built, err := s.factory.Build(ctx, raw)
	if err != nil {
		return nil, err
	}
	built.Secret = ""

	if err := s.repo.CreateClient(ctx, built); err != nil {
		return nil, err
	}
	return built, nil
}

// Update revalidates the registration through the factory and persists it.
func (s *Service) Update(ctx context.Context, raw *domain.Client) (*domain.Client, error) {
	existing, err := s.repo.GetClient(ctx, raw.ID)
	if err != nil {
		return nil, err
	}

	built, err := s.factory.Build(ctx, raw)
	if err != nil {
		return nil, err
	}
	built.ID = existing.ID
	built.Secret = existing.Secret
	built.CreatedAt = existing.CreatedAt

	if err := s.repo.UpdateClient(ctx, built); err != nil {
		return nil, err
	}
	return built, nil
}

// RotateSecret replaces the client secret and returns the new plaintext.
func (s *Service) RotateSecret(ctx context.Context, clientID string) (string, error) {
	c, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}

	secret := generateSecret(secretLength)
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	c.Secret = string(hashed)
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateClient(ctx, c); err != nil {
		return "", err
	}
	return secret, nil
}

func generateSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
