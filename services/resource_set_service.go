package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"go.pilab.hu/authz/domain"
	serrors "go.pilab.hu/authz/errors"
	applog "go.pilab.hu/authz/log"
)

// ResourceSetService manages protected resource registrations for the UMA
// resource set endpoint.
type ResourceSetService struct {
	resourceSets domain.ResourceSetRepository
	logger       applog.Logger
}

// NewResourceSetService creates a ResourceSetService.
func NewResourceSetService(resourceSets domain.ResourceSetRepository, logger applog.Logger) *ResourceSetService {
	return &ResourceSetService{resourceSets: resourceSets, logger: logger}
}

// Create registers a resource set for owner and assigns it an id.
func (s *ResourceSetService) Create(ctx context.Context, owner string, rs *domain.ResourceSet) (*domain.ResourceSet, error) {
	if err := validateResourceSet(rs); err != nil {
		return nil, err
	}
	rs.ID = uuid.NewString()
	rs.Owner = owner
	if err := s.resourceSets.SaveResourceSet(ctx, rs); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "resource set registered", map[string]any{
		"resource_set_id": rs.ID,
		"owner":           owner,
	})
	return rs, nil
}

// Get returns one resource set by id.
func (s *ResourceSetService) Get(ctx context.Context, id string) (*domain.ResourceSet, error) {
	return s.resourceSets.GetResourceSet(ctx, id)
}

// Update replaces a resource set's registration. Identity and ownership are
// immutable.
func (s *ResourceSetService) Update(ctx context.Context, id string, rs *domain.ResourceSet) (*domain.ResourceSet, error) {
	if err := validateResourceSet(rs); err != nil {
		return nil, err
	}
	existing, err := s.resourceSets.GetResourceSet(ctx, id)
	if err != nil {
		return nil, err
	}
	rs.ID = existing.ID
	rs.Owner = existing.Owner
	if len(rs.Policies) == 0 {
		// The registration endpoint carries metadata only; a metadata
		// update must not drop the policy rules attached to the set.
		rs.Policies = existing.Policies
	}
	if err := s.resourceSets.UpdateResourceSet(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// Delete removes a resource set. Deleting an unknown id is not an error.
func (s *ResourceSetService) Delete(ctx context.Context, id string) error {
	if err := s.resourceSets.DeleteResourceSet(ctx, id); err != nil && !errors.Is(err, serrors.ErrNotFound) {
		return err
	}
	return nil
}

// Search returns the resource sets matching the filter.
func (s *ResourceSetService) Search(ctx context.Context, filter domain.ResourceSetFilter) ([]*domain.ResourceSet, error) {
	return s.resourceSets.SearchResourceSets(ctx, filter)
}

func validateResourceSet(rs *domain.ResourceSet) error {
	if rs.Name == "" {
		return serrors.NewMissingParameter("name")
	}
	if len(rs.Scopes) == 0 {
		return serrors.NewMissingParameter("scopes")
	}
	for i := range rs.Policies {
		rule := &rs.Policies[i]
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if !rs.HasScopes(rule.Scopes) {
			return serrors.NewInvalidScope("a policy rule references scopes not registered on the resource set")
		}
	}
	return nil
}
