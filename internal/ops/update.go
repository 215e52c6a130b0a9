package ops

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
)

// UpdateInput contains parameters for the Update operation.
type UpdateInput struct {
	ID      string
	OwnerID string

	// Editable fields (nil = don't change)
	StartTime *int64
	EndTime   *episode.EndTime // episode.Active() re-opens
	Severity  *int
	Notes     *string // empty string clears
	Triggers  *[]string
}

// Update patches an episode. A severity is merged into the history as a new
// sample rather than overwriting it. Re-opening an ended episode fails with
// CONFLICT_ACTIVE_EPISODE if the owner has another active one.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*episode.Episode, error) {
	id, ownerID, err := validateAddress(input.ID, input.OwnerID)
	if err != nil {
		return nil, err
	}

	// Validate at least one editable field is provided
	if input.StartTime == nil && input.EndTime == nil && input.Severity == nil &&
		input.Notes == nil && input.Triggers == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}
	if input.Severity != nil {
		if err := validateSeverity(*input.Severity); err != nil {
			return nil, err
		}
	}

	now := s.now()
	e, err := s.store.MutateEpisode(ctx, id, ownerID, func(e *episode.Episode) error {
		if input.StartTime != nil {
			e.StartTime = *input.StartTime
		}
		if input.EndTime != nil {
			e.EndTime = *input.EndTime
		}
		if input.Severity != nil {
			ts := now
			if latest, ok := episode.Latest(e.SeverityHistory); ok && latest.Timestamp > ts {
				ts = latest.Timestamp
			}
			e.SeverityHistory = episode.Insert(e.SeverityHistory, episode.Sample{Timestamp: ts, Severity: *input.Severity})
			current, err := episode.Current(e.SeverityHistory)
			if err != nil {
				return errors.NewInternal(err)
			}
			e.Severity = current
		}
		if input.Notes != nil {
			e.Notes = normalizeNotes(input.Notes)
		}
		if input.Triggers != nil {
			e.Triggers = episode.NormalizeTriggers(*input.Triggers)
		}
		if err := checkTimes(e); err != nil {
			return err
		}
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("episode updated", "episode_id", e.ID, "owner_id", e.OwnerID, "active", e.Active())
	return e, nil
}
