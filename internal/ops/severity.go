package ops

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
)

// SeverityInput contains parameters for the RecordSeverityChange operation.
type SeverityInput struct {
	ID        string
	OwnerID   string
	Severity  int
	Timestamp *int64 // default: now; older values backfill
}

// RecordSeverityChange merges a sample into the episode's history. The
// current severity is the sample with the latest timestamp, so a backfilled
// sample does not change it.
func (s *Service) RecordSeverityChange(ctx context.Context, input SeverityInput) (*episode.Episode, error) {
	id, ownerID, err := validateAddress(input.ID, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := validateSeverity(input.Severity); err != nil {
		return nil, err
	}

	now := s.now()
	ts := now
	if input.Timestamp != nil {
		ts = *input.Timestamp
	}

	e, err := s.store.MutateEpisode(ctx, id, ownerID, func(e *episode.Episode) error {
		e.SeverityHistory = episode.Insert(e.SeverityHistory, episode.Sample{Timestamp: ts, Severity: input.Severity})
		current, err := episode.Current(e.SeverityHistory)
		if err != nil {
			return errors.NewInternal(err)
		}
		e.Severity = current
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("severity recorded", "episode_id", e.ID, "owner_id", e.OwnerID, "severity", input.Severity, "timestamp", ts)
	return e, nil
}
