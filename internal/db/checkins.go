package db

import (
	"context"
	"database/sql"
	"sort"

	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/store"
)

// EnqueueCheckIn persists a pending job.
func (s *Store) EnqueueCheckIn(ctx context.Context, job store.PendingJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO check_ins (id, action, arg, fire_at, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, job.ID, job.Action, job.Arg, job.FireAt, store.JobPending, job.CreatedAt, job.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClaimDue marks due jobs as claimed in a single UPDATE ... RETURNING, so two
// workers never receive the same job for the same claim window.
func (s *Store) ClaimDue(ctx context.Context, now, claimTimeout int64, limit int) ([]store.PendingJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE check_ins
		SET status = ?, claimed_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM check_ins
			WHERE (status = ? AND fire_at <= ?)
			   OR (status = ? AND claimed_at <= ?)
			ORDER BY fire_at, id
			LIMIT ?
		)
		RETURNING id, action, arg, fire_at, status, attempts, claimed_at, last_error, created_at, updated_at
	`,
		store.JobClaimed, now, now,
		store.JobPending, now,
		store.JobClaimed, now-claimTimeout,
		limit,
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var jobs []store.PendingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// RETURNING order is unspecified
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
	var lastError sql.NullString
	if errText != "" {
		lastError = sql.NullString{String: errText, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE check_ins SET status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, status, lastError, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// GetJob loads one job by id (tests and operator tooling).
func (s *Store) GetJob(ctx context.Context, id string) (store.PendingJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, action, arg, fire_at, status, attempts, claimed_at, last_error, created_at, updated_at
		FROM check_ins WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return store.PendingJob{}, errors.NewNotFound(id)
	}
	if err != nil {
		return store.PendingJob{}, errors.NewInternal(err)
	}
	return job, nil
}

func scanJob(row rowScanner) (store.PendingJob, error) {
	var (
		job       store.PendingJob
		claimedAt sql.NullInt64
		lastError sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Action, &job.Arg, &job.FireAt, &job.Status,
		&job.Attempts, &claimedAt, &lastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return store.PendingJob{}, err
	}
	job.ClaimedAt = claimedAt.Int64
	job.LastError = lastError.String
	return job, nil
}
