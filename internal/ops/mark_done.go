package ops

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
)

// MarkDoneOutput contains the result of the MarkDone operation.
type MarkDoneOutput struct {
	Episode *episode.Episode `json:"episode"`
	// AlreadyEnded is true when the episode had ended before the call; its
	// end time is left unchanged.
	AlreadyEnded bool `json:"already_ended"`
}

// MarkDone ends an active episode now. Ending an ended episode is a no-op
// success so client retries are safe.
func (s *Service) MarkDone(ctx context.Context, id, ownerID string) (*MarkDoneOutput, error) {
	id, ownerID, err := validateAddress(id, ownerID)
	if err != nil {
		return nil, err
	}

	out := &MarkDoneOutput{}
	now := s.now()
	e, err := s.store.MutateEpisode(ctx, id, ownerID, func(e *episode.Episode) error {
		if !e.Active() {
			out.AlreadyEnded = true
			return nil
		}
		// an episode backdated into the future still ends at its start
		e.EndTime = episode.EndedAt(max(now, e.StartTime))
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Episode = e

	if !out.AlreadyEnded {
		s.logger.Info("episode ended", "episode_id", e.ID, "owner_id", e.OwnerID)
	}
	return out, nil
}
