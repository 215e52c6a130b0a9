package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/aura/internal/episode"
	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/store"
)

const episodeColumns = `
	id, owner_id, start_time, end_time, severity,
	history_json, notes, triggers_json, created_at, updated_at
`

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertEpisode stores a new episode. The partial unique index on active
// episodes makes check-and-insert a single statement.
func (s *Store) InsertEpisode(ctx context.Context, e *episode.Episode) error {
	historyJSON, triggersJSON, err := encodeEpisode(e)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO episodes (` + episodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.StartTime, toNullInt64(e.EndTime.Ptr()), e.Severity,
		historyJSON, toNullString(e.Notes), triggersJSON, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflictActiveEpisode(e.OwnerID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetEpisode retrieves an episode by its ULID regardless of owner.
func (s *Store) GetEpisode(ctx context.Context, id string) (*episode.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// GetActiveEpisode returns the owner's active episode, or nil when none.
func (s *Store) GetActiveEpisode(ctx context.Context, ownerID string) (*episode.Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE owner_id = ? AND end_time IS NULL`, ownerID)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListEpisodes returns one page of the owner's episodes, newest start first,
// and the total number of matches.
func (s *Store) ListEpisodes(ctx context.Context, f store.ListFilter) ([]episode.Episode, int, error) {
	where := []string{"owner_id = ?"}
	args := []any{f.OwnerID}
	if f.ActiveOnly {
		where = append(where, "end_time IS NULL")
	}
	if f.MinSeverity > 0 {
		where = append(where, "severity >= ?")
		args = append(args, f.MinSeverity)
	}
	if f.MaxSeverity > 0 {
		where = append(where, "severity <= ?")
		args = append(args, f.MaxSeverity)
	}
	if f.Trigger != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(episodes.triggers_json) WHERE lower(json_each.value) = lower(?))")
		args = append(args, f.Trigger)
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes"+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := "SELECT " + episodeColumns + " FROM episodes" + whereSQL +
		" ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
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

// MutateEpisode runs fn against the owner's episode inside one immediate
// transaction and writes the result back.
func (s *Store) MutateEpisode(ctx context.Context, id, ownerID string, fn func(*episode.Episode) error) (*episode.Episode, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE id = ? AND owner_id = ?`, id, ownerID)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
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

	if err := updateEpisode(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

func updateEpisode(ctx context.Context, q querier, e *episode.Episode) error {
	historyJSON, triggersJSON, err := encodeEpisode(e)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		UPDATE episodes
		SET start_time = ?, end_time = ?, severity = ?, history_json = ?,
			notes = ?, triggers_json = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = q.ExecContext(ctx, query,
		e.StartTime, toNullInt64(e.EndTime.Ptr()), e.Severity, historyJSON,
		toNullString(e.Notes), triggersJSON, e.UpdatedAt,
		e.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflictActiveEpisode(e.OwnerID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteEpisode hard-deletes the owner's episode.
func (s *Store) DeleteEpisode(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// encodeEpisode serializes the JSON columns.
func encodeEpisode(e *episode.Episode) (string, sql.NullString, error) {
	history, err := json.Marshal(e.SeverityHistory)
	if err != nil {
		return "", sql.NullString{}, err
	}
	var triggers sql.NullString
	if len(e.Triggers) > 0 {
		data, err := json.Marshal(e.Triggers)
		if err != nil {
			return "", sql.NullString{}, err
		}
		triggers = sql.NullString{String: string(data), Valid: true}
	}
	return string(history), triggers, nil
}

// scanEpisode scans a single row into an Episode and checks its invariants.
func scanEpisode(row rowScanner) (*episode.Episode, error) {
	var (
		e            episode.Episode
		endTime      sql.NullInt64
		historyJSON  string
		notes        sql.NullString
		triggersJSON sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.StartTime, &endTime, &e.Severity,
		&historyJSON, &notes, &triggersJSON, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EndTime = episode.FromPtr(fromNullInt64(endTime))
	e.Notes = fromNullString(notes)

	if err := json.Unmarshal([]byte(historyJSON), &e.SeverityHistory); err != nil {
		return nil, fmt.Errorf("episode %s: history_json: %w", e.ID, err)
	}
	if triggersJSON.Valid && triggersJSON.String != "" {
		if err := json.Unmarshal([]byte(triggersJSON.String), &e.Triggers); err != nil {
			return nil, fmt.Errorf("episode %s: triggers_json: %w", e.ID, err)
		}
	}
	if err := e.CheckInvariants(); err != nil {
		return nil, err
	}
	return &e, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func fromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}
