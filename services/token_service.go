package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go.pilab.hu/authz/api"
	"go.pilab.hu/authz/cache"
	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	"go.pilab.hu/authz/internal/metrics"
	applog "go.pilab.hu/authz/log"
)

// TokenService mints, stores, validates and revokes granted tokens.
type TokenService struct {
	repo   domain.TokenRepository
	cache  cache.TokenStore
	signer *TokenSigner
	issuer string
	logger applog.Logger

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewTokenService creates a TokenService instance.
func NewTokenService(
	repo domain.TokenRepository,
	tokenCache cache.TokenStore,
	signer *TokenSigner,
	issuer string,
	accessTokenTTL, refreshTokenTTL time.Duration,
	logger applog.Logger,
) *TokenService {
	return &TokenService{
		repo:            repo,
		cache:           tokenCache,
		signer:          signer,
		issuer:          issuer,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		logger:          logger,
	}
}

// IssueOptions describes the token set to mint.
type IssueOptions struct {
	ClientID string
	Subject  string
	Scope    string
	// SigningAlg selects the signing key; empty uses the default key.
	SigningAlg string
	// IncludeRefreshToken controls whether a refresh token is minted.
	IncludeRefreshToken bool
	// IDTokenPayload, when non-empty, causes an id_token to be minted with
	// these extra claims, and is recorded as the reuse fingerprint.
	IDTokenPayload  map[string]string
	UserInfoPayload map[string]string
	// Permissions embedded into the access token for UMA RPTs.
	Permissions []domain.Permission
	// ParentTokenID preserves refresh-chain lineage across rotations.
	ParentTokenID string
	// AllowReuse lets a still-valid fingerprint-matching token be returned
	// instead of minting a new one.
	AllowReuse bool
}

// Issue mints (or reuses) a granted token set.
func (s *TokenService) Issue(ctx context.Context, opts IssueOptions) (*domain.GrantedToken, error) {
	if opts.AllowReuse {
		if existing, err := s.repo.GetByFingerprint(ctx, opts.ClientID, opts.Scope, opts.IDTokenPayload, opts.UserInfoPayload); err == nil {
			if !existing.IsRevoked && !existing.IsExpired(time.Now().UTC()) {
				metrics.TokensReusedTotal.Inc()
				return existing, nil
			}
		}
	}

	now := time.Now().UTC()
	tokenID := uuid.NewString()
	expiresAt := now.Add(s.accessTokenTTL)

	accessClaims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": opts.Subject,
		"aud": jwt.ClaimStrings{opts.ClientID},
		"exp": jwt.NewNumericDate(expiresAt).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
		"nbf": jwt.NewNumericDate(now).Unix(),
		"jti": tokenID,
	}
	if opts.Scope != "" {
		accessClaims["scope"] = opts.Scope
	}
	if len(opts.Permissions) > 0 {
		accessClaims["permissions"] = opts.Permissions
	}

	accessToken, err := s.signer.Sign(accessClaims, opts.SigningAlg)
	if err != nil {
		return nil, err
	}

	token := &domain.GrantedToken{
		ID:              tokenID,
		AccessToken:     accessToken,
		TokenType:       domain.TokenTypeBearer,
		Scope:           opts.Scope,
		ClientID:        opts.ClientID,
		UserID:          opts.Subject,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
		ParentTokenID:   opts.ParentTokenID,
		IDTokenPayload:  opts.IDTokenPayload,
		UserInfoPayload: opts.UserInfoPayload,
		Permissions:     opts.Permissions,
	}

	if len(opts.IDTokenPayload) > 0 {
		idClaims := jwt.MapClaims{
			"iss": s.issuer,
			"sub": opts.Subject,
			"aud": jwt.ClaimStrings{opts.ClientID},
			"exp": jwt.NewNumericDate(expiresAt).Unix(),
			"iat": jwt.NewNumericDate(now).Unix(),
		}
		for k, v := range opts.IDTokenPayload {
			idClaims[k] = v
		}
		idToken, idErr := s.signer.Sign(idClaims, opts.SigningAlg)
		if idErr != nil {
			return nil, idErr
		}
		token.IDToken = idToken
	}

	if opts.IncludeRefreshToken {
		token.RefreshToken = uuid.NewString()
		token.RefreshExpiresAt = now.Add(s.refreshTokenTTL)
	}

	if err := s.repo.StoreToken(ctx, token); err != nil {
		return nil, err
	}

	if cacheErr := s.cache.Set(ctx, toCacheEntry(token)); cacheErr != nil {
		s.logger.Warn(ctx, "failed to cache access token", map[string]any{"error": cacheErr.Error()})
	}

	metrics.TokensIssuedTotal.Inc()
	return token, nil
}

// Refresh rotates a refresh token: the old value becomes invalid and the new
// token records its lineage through ParentTokenID. The requesting client must
// match the original grant.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, clientID string) (*domain.GrantedToken, error) {
	old, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, serrors.NewInvalidGrant("the refresh token is invalid")
	}

	now := time.Now().UTC()
	if old.IsRevoked || (!old.RefreshExpiresAt.IsZero() && now.After(old.RefreshExpiresAt)) {
		return nil, serrors.NewInvalidGrant("the refresh token is expired or revoked")
	}
	if old.ClientID != clientID {
		return nil, serrors.NewInvalidGrant("the refresh token was not issued to this client")
	}

	replacement, err := s.mintReplacement(old, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RotateRefreshToken(ctx, refreshToken, replacement); err != nil {
		if errors.Is(err, serrors.ErrNotFound) || errors.Is(err, serrors.ErrAlreadyConsumed) {
			// A concurrent refresh won the race.
			return nil, serrors.NewInvalidGrant("the refresh token is invalid")
		}
		return nil, err
	}

	if cacheErr := s.cache.Set(ctx, toCacheEntry(replacement)); cacheErr != nil {
		s.logger.Warn(ctx, "failed to cache refreshed token", map[string]any{"error": cacheErr.Error()})
	}
	metrics.TokensRefreshedTotal.Inc()
	return replacement, nil
}

func (s *TokenService) mintReplacement(old *domain.GrantedToken, now time.Time) (*domain.GrantedToken, error) {
	tokenID := uuid.NewString()
	expiresAt := now.Add(s.accessTokenTTL)

	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": old.UserID,
		"aud": jwt.ClaimStrings{old.ClientID},
		"exp": jwt.NewNumericDate(expiresAt).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
		"nbf": jwt.NewNumericDate(now).Unix(),
		"jti": tokenID,
	}
	if old.Scope != "" {
		claims["scope"] = old.Scope
	}

	accessToken, err := s.signer.Sign(claims, "")
	if err != nil {
		return nil, err
	}

	return &domain.GrantedToken{
		ID:               tokenID,
		AccessToken:      accessToken,
		RefreshToken:     uuid.NewString(),
		TokenType:        domain.TokenTypeBearer,
		Scope:            old.Scope,
		ClientID:         old.ClientID,
		UserID:           old.UserID,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		RefreshExpiresAt: now.Add(s.refreshTokenTTL),
		ParentTokenID:    old.ID,
		IDTokenPayload:   old.IDTokenPayload,
		UserInfoPayload:  old.UserInfoPayload,
	}, nil
}

// ValidateAccessToken resolves a presented access token, preferring the cache.
func (s *TokenService) ValidateAccessToken(ctx context.Context, tokenValue string) (*domain.GrantedToken, error) {
	if entry, err := s.cache.Get(ctx, tokenValue); err == nil {
		if !entry.IsRevoked && time.Now().UTC().Before(entry.ExpiresAt) {
			return &domain.GrantedToken{
				ID:          entry.ID,
				AccessToken: tokenValue,
				TokenType:   domain.TokenTypeBearer,
				ClientID:    entry.ClientID,
				UserID:      entry.Subject,
				Scope:       entry.Scope,
				ExpiresAt:   entry.ExpiresAt,
			}, nil
		}
		_ = s.cache.Delete(ctx, tokenValue)
		return nil, serrors.ErrTokenExpiredOrRevoked
	}

	token, err := s.repo.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	if token.IsRevoked || token.IsExpired(time.Now().UTC()) {
		return nil, serrors.ErrTokenExpiredOrRevoked
	}

	if cacheErr := s.cache.Set(ctx, toCacheEntry(token)); cacheErr != nil {
		s.logger.Warn(ctx, "failed to cache access token", map[string]any{"error": cacheErr.Error()})
	}
	return token, nil
}

// RevokeAccessToken invalidates an access token (RFC 7009 semantics: calls on
// unknown tokens are not errors at the endpoint level, the repository error
// is surfaced to the caller for logging).
func (s *TokenService) RevokeAccessToken(ctx context.Context, tokenValue string) error {
	if err := s.cache.Delete(ctx, tokenValue); err != nil {
		s.logger.Warn(ctx, "failed to delete token from cache", map[string]any{"error": err.Error()})
	}
	return s.repo.RevokeAccessToken(ctx, tokenValue)
}

// RevokeRefreshToken invalidates a refresh token and its descendant chain.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, tokenValue string) error {
	return s.repo.RevokeRefreshToken(ctx, tokenValue)
}

// Introspect resolves a token value into the RFC 7662 response. Unknown or
// inactive tokens yield {active: false}, never an error.
func (s *TokenService) Introspect(ctx context.Context, tokenValue, tokenTypeHint string) *api.IntrospectionResponse {
	var (
		token *domain.GrantedToken
		err   error
	)
	switch tokenTypeHint {
	case "refresh_token":
		token, err = s.repo.GetRefreshToken(ctx, tokenValue)
	default:
		token, err = s.repo.GetAccessToken(ctx, tokenValue)
		if err != nil {
			token, err = s.repo.GetRefreshToken(ctx, tokenValue)
		}
	}
	if err != nil || token.IsRevoked || token.IsExpired(time.Now().UTC()) {
		return &api.IntrospectionResponse{Active: false}
	}

	return &api.IntrospectionResponse{
		Active:    true,
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		Username:  token.UserID,
		TokenType: token.TokenType,
		Exp:       token.ExpiresAt.Unix(),
		Iat:       token.CreatedAt.Unix(),
		Nbf:       token.CreatedAt.Unix(),
		Sub:       token.UserID,
		Aud:       token.ClientID,
		Iss:       s.issuer,
		Jti:       token.ID,
	}
}

func toCacheEntry(t *domain.GrantedToken) *cache.TokenEntry {
	return &cache.TokenEntry{
		ID:         t.ID,
		TokenValue: t.AccessToken,
		ClientID:   t.ClientID,
		Subject:    t.UserID,
		Scope:      t.Scope,
		ExpiresAt:  t.ExpiresAt,
		IsRevoked:  t.IsRevoked,
	}
}
