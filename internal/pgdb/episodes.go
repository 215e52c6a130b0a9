package pgdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/store"
)

const episodeColumns = `id, owner_id, start_time, end_time, severity, history, notes, triggers, created_at, updated_at`

// InsertEpisode stores a new episode; the partial unique index rejects a
// second active episode for the owner.
func (s *Store) InsertEpisode(ctx context.Context, e *episode.Episode) error {
	history, err := json.Marshal(e.SeverityHistory)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO episodes (`+episodeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OwnerID, e.StartTime, e.EndTime.Ptr(), e.Severity,
		history, e.Notes, e.Triggers, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewConflictActiveEpisode(e.OwnerID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetEpisode loads an episode regardless of owner.
func (s *Store) GetEpisode(ctx context.Context, id string) (*episode.Episode, error) {
	e, err := scanEpisode(s.pool.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// GetActiveEpisode returns the owner's active episode or nil.
func (s *Store) GetActiveEpisode(ctx context.Context, ownerID string) (*episode.Episode, error) {
	e, err := scanEpisode(s.pool.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE owner_id = $1 AND end_time IS NULL`, ownerID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListEpisodes returns one page, newest start first, and the match count.
func (s *Store) ListEpisodes(ctx context.Context, f store.ListFilter) ([]episode.Episode, int, error) {
	where := []string{"owner_id = $1"}
	args := []any{f.OwnerID}
	if f.ActiveOnly {
		where = append(where, "end_time IS NULL")
	}
	if f.MinSeverity > 0 {
		args = append(args, f.MinSeverity)
		where = append(where, fmt.Sprintf("severity >= $%d", len(args)))
	}
	if f.MaxSeverity > 0 {
		args = append(args, f.MaxSeverity)
		where = append(where, fmt.Sprintf("severity <= $%d", len(args)))
	}
	if f.Trigger != "" {
		args = append(args, f.Trigger)
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(triggers) AS t(label) WHERE lower(t.label) = lower($%d))", len(args)))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM episodes"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := fmt.Sprintf("SELECT %s FROM episodes%s ORDER BY start_time DESC, id DESC LIMIT $%d OFFSET $%d",
		episodeColumns, whereSQL, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []episode.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// MutateEpisode locks the owner's row with FOR UPDATE, applies fn and writes
// it back. Other owners' rows are never locked.
func (s *Store) MutateEpisode(ctx context.Context, id, ownerID string, fn func(*episode.Episode) error) (*episode.Episode, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, err := scanEpisode(tx.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE id = $1 AND owner_id = $2 FOR UPDATE`, id, ownerID))
	if err == pgx.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := fn(e); err != nil {
		return nil, err
	}
	if err := e.CheckInvariants(); err != nil {
		return nil, errors.NewInternal(err)
	}

	history, err := json.Marshal(e.SeverityHistory)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE episodes
		 SET start_time = $2, end_time = $3, severity = $4, history = $5,
		     notes = $6, triggers = $7, updated_at = $8
		 WHERE id = $1`,
		e.ID, e.StartTime, e.EndTime.Ptr(), e.Severity, history, e.Notes, e.Triggers, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.NewConflictActiveEpisode(e.OwnerID)
		}
		return nil, errors.NewInternal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// DeleteEpisode hard-deletes the owner's episode.
func (s *Store) DeleteEpisode(ctx context.Context, id, ownerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM episodes WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return errors.NewInternal(err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

func scanEpisode(row pgx.Row) (*episode.Episode, error) {
	var (
		e       episode.Episode
		endTime *int64
		history []byte
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.StartTime, &endTime, &e.Severity,
		&history, &e.Notes, &e.Triggers, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.EndTime = episode.FromPtr(endTime)
	if err := json.Unmarshal(history, &e.SeverityHistory); err != nil {
		return nil, fmt.Errorf("episode %s: history: %w", e.ID, err)
	}
	if len(e.Triggers) == 0 {
		e.Triggers = nil
	}
	if err := e.CheckInvariants(); err != nil {
		return nil, err
	}
	return &e, nil
}
