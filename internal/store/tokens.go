package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateBearerToken stores a newly issued token's hash. Callers generate the
// raw token and its hash beforehand; Store never sees the raw value.
func (s *Store) CreateBearerToken(ctx context.Context, t BearerToken) error {
	const q = `
		INSERT INTO bearer_tokens (id, user_id, name, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, t.ID, t.UserID, t.Name, t.TokenHash, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: create bearer token: %w", err)
	}
	return nil
}

func scanBearerToken(row pgx.CollectableRow) (BearerToken, error) {
	var t BearerToken
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt); err != nil {
		return BearerToken{}, err
	}
	return t, nil
}

const bearerTokenColumns = `id, user_id, name, token_hash, created_at, expires_at, revoked_at`

// BearerTokenByHash looks up a token by its SHA-256 hash, the only lookup
// the HTTP gateway's auth middleware needs per request.
func (s *Store) BearerTokenByHash(ctx context.Context, hash string) (BearerToken, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bearerTokenColumns+` FROM bearer_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return BearerToken{}, fmt.Errorf("store: bearer token by hash: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanBearerToken)
	if err != nil {
		return BearerToken{}, err
	}
	return t, nil
}

// BearerTokensByUser lists every token (active or not) a user has issued.
func (s *Store) BearerTokensByUser(ctx context.Context, userID string) ([]BearerToken, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bearerTokenColumns+` FROM bearer_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: bearer tokens by user: %w", err)
	}
	ts, err := pgx.CollectRows(rows, scanBearerToken)
	if err != nil {
		return nil, fmt.Errorf("store: scan bearer tokens: %w", err)
	}
	if ts == nil {
		ts = []BearerToken{}
	}
	return ts, nil
}

// RevokeBearerToken marks a token revoked as of now, making it immediately
// unusable regardless of its expiry.
func (s *Store) RevokeBearerToken(ctx context.Context, id uuid.UUID, now time.Time) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE bearer_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, now)
	if err != nil {
		return fmt.Errorf("store: revoke bearer token %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("store: bearer token %s not found or already revoked", id)
	}
	return nil
}
