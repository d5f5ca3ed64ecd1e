package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brokermcp/broker/internal/config"
)

// UpsertProvider inserts a new provider or, if p.ID is already known,
// replaces its connection config and metadata in place. Tools are
// untouched; call ReplaceTools separately after (re-)discovering a
// provider's manifest.
func (s *Store) UpsertProvider(ctx context.Context, p Provider) error {
	const q = `
		INSERT INTO providers (id, name, description, domain, transport, config, visibility, enabled, ownership, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    name        = EXCLUDED.name,
		    description = EXCLUDED.description,
		    domain      = EXCLUDED.domain,
		    transport   = EXCLUDED.transport,
		    config      = EXCLUDED.config,
		    visibility  = EXCLUDED.visibility,
		    enabled     = EXCLUDED.enabled,
		    ownership   = EXCLUDED.ownership,
		    owner_id    = EXCLUDED.owner_id`
	_, err := s.pool.Exec(ctx, q,
		p.ID, p.Name, p.Description, p.Domain, string(p.Transport), p.Config,
		string(p.Visibility), p.Enabled, string(p.Ownership), p.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert provider %s: %w", p.Name, err)
	}
	return nil
}

// DeleteProvider removes a provider and, via ON DELETE CASCADE, its tools,
// embeddings, secrets, and user preferences.
func (s *Store) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete provider %s: %w", id, err)
	}
	return nil
}

// SetProviderEnabled flips a provider's broker-wide enabled flag
// (enable_provider / disable_provider).
func (s *Store) SetProviderEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	ct, err := s.pool.Exec(ctx, `UPDATE providers SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("store: set provider enabled %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("store: provider %s not found", id)
	}
	return nil
}

func scanProvider(row pgx.CollectableRow) (Provider, error) {
	var p Provider
	var transport, visibility, ownership string
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Domain, &transport, &p.Config,
		&visibility, &p.Enabled, &ownership, &p.OwnerID, &p.CreatedAt,
	); err != nil {
		return Provider{}, err
	}
	p.Transport = config.TransportKind(transport)
	p.Visibility = ProviderVisibility(visibility)
	p.Ownership = ProviderOwnership(ownership)
	return p, nil
}

const providerColumns = `id, name, description, domain, transport, config, visibility, enabled, ownership, owner_id, created_at`

// GetProvider fetches one provider by ID. Returns pgx.ErrNoRows if absent.
func (s *Store) GetProvider(ctx context.Context, id uuid.UUID) (Provider, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	if err != nil {
		return Provider{}, fmt.Errorf("store: get provider %s: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProvider)
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

// GetProviderByName fetches one provider by its unique name.
func (s *Store) GetProviderByName(ctx context.Context, name string) (Provider, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers WHERE name = $1`, name)
	if err != nil {
		return Provider{}, fmt.Errorf("store: get provider by name %s: %w", name, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProvider)
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

// ListProviders returns all registered providers, ordered by name.
func (s *Store) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list providers: %w", err)
	}
	ps, err := pgx.CollectRows(rows, scanProvider)
	if err != nil {
		return nil, fmt.Errorf("store: scan providers: %w", err)
	}
	if ps == nil {
		ps = []Provider{}
	}
	return ps, nil
}

// AccessibleProviders returns every provider userID may see: enabled AND
// visible AND not explicitly disabled, OR explicitly enabled — the access
// predicate shared with the AccessControl hook.
func (s *Store) AccessibleProviders(ctx context.Context, userID string) ([]Provider, error) {
	const q = `
		SELECT p.id, p.name, p.description, p.domain, p.transport, p.config,
		       p.visibility, p.enabled, p.ownership, p.owner_id, p.created_at
		FROM providers p
		LEFT JOIN user_provider_preferences pref
		  ON pref.provider_id = p.id AND pref.user_id = $1
		WHERE
		  (pref.enabled IS TRUE)
		  OR (pref.enabled IS NULL AND p.enabled AND p.visibility = 'visible')
		ORDER BY p.name`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: accessible providers: %w", err)
	}
	ps, err := pgx.CollectRows(rows, scanProvider)
	if err != nil {
		return nil, fmt.Errorf("store: scan accessible providers: %w", err)
	}
	if ps == nil {
		ps = []Provider{}
	}
	return ps, nil
}

// UserPreference returns the per-user override for a provider, if one
// exists.
func (s *Store) UserPreference(ctx context.Context, userID string, providerID uuid.UUID) (enabled bool, found bool, err error) {
	row := s.pool.QueryRow(ctx,
		`SELECT enabled FROM user_provider_preferences WHERE user_id = $1 AND provider_id = $2`,
		userID, providerID)
	if err := row.Scan(&enabled); err != nil {
		if err == pgx.ErrNoRows {
			return false, false, nil
		}
		return false, false, fmt.Errorf("store: user preference: %w", err)
	}
	return enabled, true, nil
}

// SetUserPreference upserts a per-user enable/disable override for a
// provider.
func (s *Store) SetUserPreference(ctx context.Context, pref UserProviderPreference) error {
	const q = `
		INSERT INTO user_provider_preferences (user_id, provider_id, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET enabled = EXCLUDED.enabled`
	_, err := s.pool.Exec(ctx, q, pref.UserID, pref.ProviderID, pref.Enabled)
	if err != nil {
		return fmt.Errorf("store: set user preference: %w", err)
	}
	return nil
}

// PutProviderSecret stores (or replaces) one named, already vault-encrypted
// credential for a provider. Callers pass the already-encrypted ciphertext;
// Store never sees plaintext secrets.
func (s *Store) PutProviderSecret(ctx context.Context, secret ProviderSecret) error {
	const q = `
		INSERT INTO provider_secrets (provider_id, name, ciphertext)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id, name) DO UPDATE SET ciphertext = EXCLUDED.ciphertext`
	_, err := s.pool.Exec(ctx, q, secret.ProviderID, secret.Name, secret.Ciphertext)
	if err != nil {
		return fmt.Errorf("store: put provider secret: %w", err)
	}
	return nil
}

// ProviderSecrets returns every stored (still-encrypted) secret for a
// provider, keyed by name.
func (s *Store) ProviderSecrets(ctx context.Context, providerID uuid.UUID) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, ciphertext FROM provider_secrets WHERE provider_id = $1`, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: provider secrets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, ciphertext string
		if err := rows.Scan(&name, &ciphertext); err != nil {
			return nil, fmt.Errorf("store: scan provider secret: %w", err)
		}
		out[name] = ciphertext
	}
	return out, rows.Err()
}
