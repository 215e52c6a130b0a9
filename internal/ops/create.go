package ops

import (
	"context"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/notify"
	"github.com/hpungsan/aura/internal/schedule"
)

// CreateInput contains parameters for the Create operation.
//
// StartTime defaults to now, so backfilling a past episode needs StartTime as
// well as EndTime; an EndTime before the start is INVALID_REQUEST.
type CreateInput struct {
	OwnerID  string
	Severity int

	StartTime *int64 // default: now
	EndTime   *int64 // nil = active
	Notes     *string
	Triggers  []string
}

// Create stores a new episode. An active episode fails with
// CONFLICT_ACTIVE_EPISODE if the owner already has one, and on success gets
// a check-in scheduled after the configured delay.
func (s *Service) Create(ctx context.Context, input CreateInput) (*episode.Episode, error) {
	ownerID, err := validateOwner(input.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := validateSeverity(input.Severity); err != nil {
		return nil, err
	}

	now := s.now()
	start := now
	if input.StartTime != nil {
		start = *input.StartTime
	}

	id, err := s.newID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	e := &episode.Episode{
		ID:              id,
		OwnerID:         ownerID,
		StartTime:       start,
		EndTime:         episode.FromPtr(input.EndTime),
		Severity:        input.Severity,
		SeverityHistory: []episode.Sample{{Timestamp: start, Severity: input.Severity}},
		Notes:           normalizeNotes(input.Notes),
		Triggers:        episode.NormalizeTriggers(input.Triggers),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := checkTimes(e); err != nil {
		if input.StartTime == nil {
			return nil, errors.NewInvalidRequest("end_time must not be before start_time (start_time defaults to now; set it when recording a past episode)")
		}
		return nil, err
	}

	// The store checks and inserts atomically.
	if err := s.store.InsertEpisode(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info("episode created", "episode_id", e.ID, "owner_id", e.OwnerID, "active", e.Active())

	if e.Active() {
		s.scheduleCheckIn(ctx, e)
	}
	return e, nil
}

// scheduleCheckIn is best effort: failures are logged, never returned.
func (s *Service) scheduleCheckIn(ctx context.Context, e *episode.Episode) {
	if s.scheduler == nil {
		return
	}
	h, err := s.scheduler.Schedule(ctx, s.cfg.CheckInDelay.Std(), schedule.Job{
		Action: notify.ActionCheckIn,
		Arg:    e.ID,
	})
	if err != nil {
		s.logger.Warn("failed to schedule check-in", "episode_id", e.ID, "owner_id", e.OwnerID, "error", err)
		return
	}
	s.logger.Debug("check-in scheduled", "episode_id", e.ID, "job_id", h.ID, "fire_at", h.FireAt)
}
