package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authz/cache"
	serrors "go.pilab.hu/authz/errors"
)

var (
	testSignerOnce sync.Once
	testSignerInst *TokenSigner
)

// testSigner shares one generated RSA key across the package tests; key
// generation is the slow part.
func testSigner(t *testing.T) *TokenSigner {
	t.Helper()
	testSignerOnce.Do(func() {
		resolver := NewKeyResolver()
		if _, err := resolver.GenerateSigningKey("RS256"); err != nil {
			panic(err)
		}
		testSignerInst = NewTokenSigner(resolver)
	})
	return testSignerInst
}

func newTestTokenService(t *testing.T) (*TokenService, *memTokenRepo) {
	t.Helper()
	repo := newMemTokenRepo()
	svc := NewTokenService(
		repo,
		cache.NewMemoryTokenStore(time.Minute),
		testSigner(t),
		"https://auth.example.com",
		time.Hour, 24*time.Hour,
		testLogger(),
	)
	return svc, repo
}

func TestTokenServiceIssue(t *testing.T) {
	svc, _ := newTestTokenService(t)

	token, err := svc.Issue(context.Background(), IssueOptions{
		ClientID:            "client-1",
		Subject:             "user-1",
		Scope:               "openid profile",
		IncludeRefreshToken: true,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "openid profile", token.Scope)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token.AccessToken, claims, testSigner(t).Keyfunc())
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "https://auth.example.com", claims["iss"])
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, token.ID, claims["jti"])
	assert.NotEmpty(t, parsed.Header["kid"])
}

func TestTokenServiceIssue_IDToken(t *testing.T) {
	svc, _ := newTestTokenService(t)

	token, err := svc.Issue(context.Background(), IssueOptions{
		ClientID:       "client-1",
		Subject:        "user-1",
		Scope:          "openid",
		IDTokenPayload: map[string]string{"preferred_username": "alice"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.IDToken)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token.IDToken, claims, testSigner(t).Keyfunc())
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["preferred_username"])
}

func TestTokenServiceIssue_Reuse(t *testing.T) {
	svc, _ := newTestTokenService(t)

	opts := IssueOptions{
		ClientID:   "client-1",
		Subject:    "client-1",
		Scope:      "read write",
		AllowReuse: true,
	}

	first, err := svc.Issue(context.Background(), opts)
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AccessToken, second.AccessToken)
}

func TestTokenServiceIssue_ReuseSkipsRevoked(t *testing.T) {
	svc, _ := newTestTokenService(t)

	opts := IssueOptions{ClientID: "client-1", Subject: "client-1", Scope: "read", AllowReuse: true}

	first, err := svc.Issue(context.Background(), opts)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAccessToken(context.Background(), first.AccessToken))

	second, err := svc.Issue(context.Background(), opts)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTokenServiceRefresh_Rotation(t *testing.T) {
	svc, _ := newTestTokenService(t)

	original, err := svc.Issue(context.Background(), IssueOptions{
		ClientID:            "client-1",
		Subject:             "user-1",
		Scope:               "read",
		IncludeRefreshToken: true,
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), original.RefreshToken, "client-1")
	require.NoError(t, err)

	assert.NotEqual(t, original.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, original.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, original.ID, refreshed.ParentTokenID)
	assert.Equal(t, original.Scope, refreshed.Scope)
	assert.Equal(t, original.UserID, refreshed.UserID)

	// The rotated-out value must not be redeemable again.
	_, err = svc.Refresh(context.Background(), original.RefreshToken, "client-1")
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.InvalidGrant, oauthErr.Code)
}

func TestTokenServiceRefresh_WrongClient(t *testing.T) {
	svc, _ := newTestTokenService(t)

	original, err := svc.Issue(context.Background(), IssueOptions{
		ClientID:            "client-1",
		Subject:             "user-1",
		Scope:               "read",
		IncludeRefreshToken: true,
	})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), original.RefreshToken, "client-2")
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.InvalidGrant, oauthErr.Code)
	assert.Equal(t, "the refresh token was not issued to this client", oauthErr.Description)
}

func TestTokenServiceRevokeRefreshToken_Cascades(t *testing.T) {
	svc, repo := newTestTokenService(t)

	original, err := svc.Issue(context.Background(), IssueOptions{
		ClientID:            "client-1",
		Subject:             "user-1",
		Scope:               "read",
		IncludeRefreshToken: true,
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), original.RefreshToken, "client-1")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeRefreshToken(context.Background(), refreshed.RefreshToken))

	stored, err := repo.GetAccessToken(context.Background(), refreshed.AccessToken)
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked)
}

func TestTokenServiceValidateAccessToken(t *testing.T) {
	svc, _ := newTestTokenService(t)

	token, err := svc.Issue(context.Background(), IssueOptions{
		ClientID: "client-1",
		Subject:  "user-1",
		Scope:    "read",
	})
	require.NoError(t, err)

	granted, err := svc.ValidateAccessToken(context.Background(), token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", granted.UserID)
	assert.Equal(t, "client-1", granted.ClientID)

	// Revocation beats the cache.
	require.NoError(t, svc.RevokeAccessToken(context.Background(), token.AccessToken))
	_, err = svc.ValidateAccessToken(context.Background(), token.AccessToken)
	assert.Error(t, err)
}

func TestTokenServiceIntrospect(t *testing.T) {
	svc, _ := newTestTokenService(t)

	token, err := svc.Issue(context.Background(), IssueOptions{
		ClientID: "client-1",
		Subject:  "user-1",
		Scope:    "read",
	})
	require.NoError(t, err)

	resp := svc.Introspect(context.Background(), token.AccessToken, "")
	assert.True(t, resp.Active)
	assert.Equal(t, "read", resp.Scope)
	assert.Equal(t, "client-1", resp.ClientID)
	assert.Equal(t, "user-1", resp.Sub)

	inactive := svc.Introspect(context.Background(), "no-such-token", "")
	assert.False(t, inactive.Active)
	assert.Empty(t, inactive.Scope)
}
