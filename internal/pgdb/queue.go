package pgdb

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/push"
	"github.com/hpungsan/aura/internal/store"
)

// ListEndpoints returns the owner's endpoints, oldest first.
func (s *Store) ListEndpoints(ctx context.Context, ownerID string) ([]push.Endpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT owner_id, kind, address, COALESCE(secret, ''), created_at
		 FROM endpoints WHERE owner_id = $1 ORDER BY created_at, address`, ownerID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []push.Endpoint
	for rows.Next() {
		var ep push.Endpoint
		var kind string
		if err := rows.Scan(&ep.OwnerID, &kind, &ep.Address, &ep.Secret, &ep.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		ep.Kind = push.Kind(kind)
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// UpsertEndpoint adds or replaces an endpoint keyed by (owner, address).
func (s *Store) UpsertEndpoint(ctx context.Context, ep push.Endpoint) error {
	var secret *string
	if ep.Secret != "" {
		secret = &ep.Secret
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO endpoints (owner_id, kind, address, secret, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id, address) DO UPDATE
		 SET kind = EXCLUDED.kind, secret = EXCLUDED.secret`,
		ep.OwnerID, string(ep.Kind), ep.Address, secret, ep.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RemoveEndpoint deletes one endpoint.
func (s *Store) RemoveEndpoint(ctx context.Context, ownerID, address string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE owner_id = $1 AND address = $2`, ownerID, address)
	if err != nil {
		return errors.NewInternal(err)
	}
	if tag.RowsAffected() == 0 {
		return &errors.AuraError{
			Code:    errors.ErrNotFound,
			Status:  404,
			Message: "endpoint not found: " + address,
			Details: map[string]any{"address": address},
		}
	}
	return nil
}

// EnqueueCheckIn persists a pending job.
func (s *Store) EnqueueCheckIn(ctx context.Context, job store.PendingJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO check_ins (id, action, arg, fire_at, status, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`,
		job.ID, job.Action, job.Arg, job.FireAt, store.JobPending, job.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClaimDue claims due jobs; SKIP LOCKED lets several workers poll at once.
func (s *Store) ClaimDue(ctx context.Context, now, claimTimeout int64, limit int) ([]store.PendingJob, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE check_ins
		 SET status = $1, claimed_at = $2, attempts = attempts + 1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM check_ins
			WHERE (status = $3 AND fire_at <= $2)
			   OR (status = $1 AND claimed_at <= $4)
			ORDER BY fire_at, id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, action, arg, fire_at, status, attempts, COALESCE(claimed_at, 0), COALESCE(last_error, ''), created_at, updated_at`,
		store.JobClaimed, now, store.JobPending, now-claimTimeout, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PendingJob, error) {
		var j store.PendingJob
		err := row.Scan(&j.ID, &j.Action, &j.Arg, &j.FireAt, &j.Status, &j.Attempts, &j.ClaimedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
		return j, err
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].FireAt != jobs[j].FireAt {
			return jobs[i].FireAt < jobs[j].FireAt
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// CompleteJob records the outcome of a claimed job.
func (s *Store) CompleteJob(ctx context.Context, id string, now int64, failed bool, errText string) error {
	status := store.JobDone
	if failed {
		status = store.JobFailed
	}
	var lastError *string
	if errText != "" {
		lastError = &errText
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE check_ins SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1`,
		id, status, lastError, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}
