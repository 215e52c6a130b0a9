package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/aura/internal/errors"
	"github.com/hpungsan/aura/internal/push"
)

// ListEndpoints returns the owner's endpoints, oldest first.
func (s *Store) ListEndpoints(ctx context.Context, ownerID string) ([]push.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, kind, address, secret, created_at
		FROM endpoints
		WHERE owner_id = ?
		ORDER BY created_at, address
	`, ownerID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []push.Endpoint
	for rows.Next() {
		var (
			ep     push.Endpoint
			kind   string
			secret sql.NullString
		)
		if err := rows.Scan(&ep.OwnerID, &kind, &ep.Address, &secret, &ep.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		ep.Kind = push.Kind(kind)
		ep.Secret = secret.String
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// UpsertEndpoint adds an endpoint or replaces the kind and secret of an
// existing (owner, address) pair.
func (s *Store) UpsertEndpoint(ctx context.Context, ep push.Endpoint) error {
	var secret sql.NullString
	if ep.Secret != "" {
		secret = sql.NullString{String: ep.Secret, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO endpoints (owner_id, kind, address, secret, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, address) DO UPDATE
		SET kind = excluded.kind, secret = excluded.secret
	`, ep.OwnerID, string(ep.Kind), ep.Address, secret, ep.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// RemoveEndpoint deletes one endpoint.
func (s *Store) RemoveEndpoint(ctx context.Context, ownerID, address string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM endpoints WHERE owner_id = ? AND address = ?`, ownerID, address)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return &errors.AuraError{
			Code:    errors.ErrNotFound,
			Status:  404,
			Message: "endpoint not found: " + address,
			Details: map[string]any{"address": address},
		}
	}
	return nil
}
