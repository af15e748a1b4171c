package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
)

func TestResourceSetService_CRUD(t *testing.T) {
	repo := newMemResourceSetRepo()
	svc := NewResourceSetService(repo, testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, "alice", &domain.ResourceSet{
		Name:   "photos",
		Scopes: []string{"read", "write"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Owner)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "photos", got.Name)

	// Identity and ownership survive an update.
	updated, err := svc.Update(ctx, created.ID, &domain.ResourceSet{
		ID:     "attacker-controlled",
		Owner:  "mallory",
		Name:   "photos-v2",
		Scopes: []string{"read"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "alice", updated.Owner)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, serrors.ErrNotFound)

	// Deleting an unknown id is tolerated.
	assert.NoError(t, svc.Delete(ctx, "never-existed"))
}

func TestResourceSetService_Validation(t *testing.T) {
	svc := NewResourceSetService(newMemResourceSetRepo(), testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", &domain.ResourceSet{Scopes: []string{"read"}})
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "the parameter name is missing", oauthErr.Description)

	_, err = svc.Create(ctx, "alice", &domain.ResourceSet{Name: "photos"})
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, "the parameter scopes is missing", oauthErr.Description)

	_, err = svc.Create(ctx, "alice", &domain.ResourceSet{
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{Scopes: []string{"delete"}},
		},
	})
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.InvalidScope, oauthErr.Code)
}

func TestResourceSetService_UpdateKeepsPolicies(t *testing.T) {
	svc := NewResourceSetService(newMemResourceSetRepo(), testLogger())
	ctx := context.Background()

	created, err := svc.Create(ctx, "alice", &domain.ResourceSet{
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{
				Scopes: []string{"read"},
				Claims: []domain.ClaimRequirement{{Type: "email", Value: "bob@example.com"}},
			},
		},
	})
	require.NoError(t, err)

	// The registration endpoint never carries rules; a rename must not
	// wipe them.
	_, err = svc.Update(ctx, created.ID, &domain.ResourceSet{
		Name:   "photos-renamed",
		Scopes: []string{"read"},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Policies, 1)
	assert.Equal(t, "bob@example.com", got.Policies[0].Claims[0].Value)
	assert.Equal(t, "photos-renamed", got.Name)
}

func TestResourceSetService_RuleIDsAssigned(t *testing.T) {
	svc := NewResourceSetService(newMemResourceSetRepo(), testLogger())

	created, err := svc.Create(context.Background(), "alice", &domain.ResourceSet{
		Name:   "photos",
		Scopes: []string{"read"},
		Policies: []domain.PolicyRule{
			{Scopes: []string{"read"}},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Policies[0].ID)
}

func TestResourceSetService_Search(t *testing.T) {
	repo := newMemResourceSetRepo()
	svc := NewResourceSetService(repo, testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", &domain.ResourceSet{Name: "photos", Scopes: []string{"read"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "bob", &domain.ResourceSet{Name: "docs", Scopes: []string{"read"}})
	require.NoError(t, err)

	mine, err := svc.Search(ctx, domain.ResourceSetFilter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "photos", mine[0].Name)
}
