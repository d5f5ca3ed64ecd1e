package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/brokermcp/broker/internal/config"
)

// UpsertConfigDefinition registers (or updates) the schema for one config
// key. Called at startup to seed the built-in definitions; get_config_schema
// reads these back verbatim.
func (s *Store) UpsertConfigDefinition(ctx context.Context, d ConfigDefinition) error {
	const q = `
		INSERT INTO config_definitions (key, category, value_type, display_hint, default_value, possible_values, validators)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
		    category        = EXCLUDED.category,
		    value_type      = EXCLUDED.value_type,
		    display_hint    = EXCLUDED.display_hint,
		    default_value   = EXCLUDED.default_value,
		    possible_values = EXCLUDED.possible_values,
		    validators      = EXCLUDED.validators`
	_, err := s.pool.Exec(ctx, q, d.Key, d.Category, d.ValueType, d.DisplayHint, d.DefaultValue, d.PossibleValues, d.Validators)
	if err != nil {
		return fmt.Errorf("store: upsert config definition %s: %w", d.Key, err)
	}
	return nil
}

// ConfigDefinitions lists every recognized config key (get_config_schema).
func (s *Store) ConfigDefinitions(ctx context.Context) ([]ConfigDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, category, value_type, display_hint, default_value, possible_values, validators
		 FROM config_definitions ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: config definitions: %w", err)
	}
	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ConfigDefinition, error) {
		var d ConfigDefinition
		if err := row.Scan(&d.Key, &d.Category, &d.ValueType, &d.DisplayHint, &d.DefaultValue, &d.PossibleValues, &d.Validators); err != nil {
			return ConfigDefinition{}, err
		}
		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan config definitions: %w", err)
	}
	if defs == nil {
		defs = []ConfigDefinition{}
	}
	return defs, nil
}

// ConfigDefinition fetches one key's schema, used to validate a set_config
// call before writing its value.
func (s *Store) ConfigDefinition(ctx context.Context, key string) (ConfigDefinition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, category, value_type, display_hint, default_value, possible_values, validators
		 FROM config_definitions WHERE key = $1`, key)
	var d ConfigDefinition
	if err := row.Scan(&d.Key, &d.Category, &d.ValueType, &d.DisplayHint, &d.DefaultValue, &d.PossibleValues, &d.Validators); err != nil {
		return ConfigDefinition{}, err
	}
	return d, nil
}

// SetConfigValue upserts one scoped override (update_system_config /
// update_user_config). Callers are responsible for invalidating the
// corresponding [config.Cache] entry afterward.
func (s *Store) SetConfigValue(ctx context.Context, v ConfigValue) error {
	const q = `
		INSERT INTO config_values (key, scope, user_id, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key, scope, user_id) DO UPDATE SET value = EXCLUDED.value`
	_, err := s.pool.Exec(ctx, q, v.Key, string(v.Scope), v.UserID, v.Value)
	if err != nil {
		return fmt.Errorf("store: set config value %s: %w", v.Key, err)
	}
	return nil
}

// GetConfigValue reads one scoped override, returning found=false if none
// exists at that exact (key, scope, userID).
func (s *Store) GetConfigValue(ctx context.Context, key string, scope config.Scope, userID string) (value string, found bool, err error) {
	uid := userID
	row := s.pool.QueryRow(ctx,
		`SELECT value FROM config_values WHERE key = $1 AND scope = $2 AND user_id = $3`,
		key, string(scope), uid)
	if err := row.Scan(&value); err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: get config value %s: %w", key, err)
	}
	return value, true, nil
}

// DeleteConfigValue removes one scoped override, causing get_effective_value
// to fall back to the next-broader scope or the key's default.
func (s *Store) DeleteConfigValue(ctx context.Context, key string, scope config.Scope, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM config_values WHERE key = $1 AND scope = $2 AND user_id = $3`,
		key, string(scope), userID)
	if err != nil {
		return fmt.Errorf("store: delete config value %s: %w", key, err)
	}
	return nil
}
