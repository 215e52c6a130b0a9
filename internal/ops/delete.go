package ops

import "context"

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Delete removes an episode permanently. A missing id and an id owned by
// someone else both fail with NOT_FOUND, including a repeated delete.
// A check-in still pending for the episode finds nothing when it fires.
func (s *Service) Delete(ctx context.Context, id, ownerID string) (*DeleteOutput, error) {
	id, ownerID, err := validateAddress(id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteEpisode(ctx, id, ownerID); err != nil {
		return nil, err
	}
	s.logger.Info("episode deleted", "episode_id", id, "owner_id", ownerID)
	return &DeleteOutput{ID: id, Deleted: true}, nil
}
