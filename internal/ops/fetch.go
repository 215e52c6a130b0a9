package ops

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
)

// GetActive returns the owner's active episode, or nil when there is none.
func (s *Service) GetActive(ctx context.Context, ownerID string) (*episode.Episode, error) {
	ownerID, err := validateOwner(ownerID)
	if err != nil {
		return nil, err
	}
	return s.store.GetActiveEpisode(ctx, ownerID)
}

// Fetch returns one of the owner's episodes. Episodes of other owners are
// reported as NOT_FOUND.
func (s *Service) Fetch(ctx context.Context, id, ownerID string) (*episode.Episode, error) {
	id, ownerID, err := validateAddress(id, ownerID)
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetEpisode(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, errors.NewNotFound(id)
	}
	return e, nil
}
