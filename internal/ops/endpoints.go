package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/push"
)

// AddEndpoint registers (or replaces) a delivery endpoint for an owner.
func (s *Service) AddEndpoint(ctx context.Context, ep push.Endpoint) (*push.Endpoint, error) {
	ownerID, err := validateOwner(ep.OwnerID)
	if err != nil {
		return nil, err
	}
	ep.OwnerID = ownerID
	ep.Kind = push.Kind(strings.ToLower(strings.TrimSpace(string(ep.Kind))))
	ep.Address = strings.TrimSpace(ep.Address)
	if err := ep.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	ep.CreatedAt = s.now()
	if err := s.store.UpsertEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	s.logger.Info("endpoint registered", "owner_id", ep.OwnerID, "kind", ep.Kind, "endpoint", ep.Address)
	return &ep, nil
}

// RemoveEndpoint unregisters an endpoint. NOT_FOUND when absent.
func (s *Service) RemoveEndpoint(ctx context.Context, ownerID, address string) error {
	ownerID, err := validateOwner(ownerID)
	if err != nil {
		return err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.NewInvalidRequest("address is required")
	}
	return s.store.RemoveEndpoint(ctx, ownerID, address)
}

// ListEndpoints returns the owner's endpoints.
func (s *Service) ListEndpoints(ctx context.Context, ownerID string) ([]push.Endpoint, error) {
	ownerID, err := validateOwner(ownerID)
	if err != nil {
		return nil, err
	}
	eps, err := s.store.ListEndpoints(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if eps == nil {
		eps = []push.Endpoint{}
	}
	return eps, nil
}
