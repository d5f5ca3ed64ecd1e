package store

import (
	"context"
	"fmt"

	"github.com/brokermcp/broker/internal/config"
)

// ResolvedConfig is the outcome of resolving one config key through the
// hierarchy: user-override → system → definition default.
type ResolvedConfig struct {
	Key          string
	Value        string
	IsOverridden bool // true iff a user-override row (not the default or system scope) supplied Value
}

// GetEffectiveValue resolves key for userID, reading through cache before
// touching the database and warming cache on a miss. userID may be empty,
// in which case only the system scope and default are consulted.
//
// This is the general counterpart to [embeddings.Resolver], which performs
// the same user-override → system → default walk but only for the
// embedding backend's own handful of keys; arbitrary ConfigDefinition keys
// go through here instead.
func (s *Store) GetEffectiveValue(ctx context.Context, cache *config.Cache, key, userID string) (ResolvedConfig, error) {
	if userID != "" {
		if v, ok := cache.Get(key, config.ScopeUserOverride, userID); ok {
			return ResolvedConfig{Key: key, Value: v, IsOverridden: true}, nil
		}
		v, found, err := s.GetConfigValue(ctx, key, config.ScopeUserOverride, userID)
		if err != nil {
			return ResolvedConfig{}, fmt.Errorf("store: get effective value %s: %w", key, err)
		}
		if found {
			cache.Set(key, config.ScopeUserOverride, userID, v)
			return ResolvedConfig{Key: key, Value: v, IsOverridden: true}, nil
		}
	}

	if v, ok := cache.Get(key, config.ScopeSystem, ""); ok {
		return ResolvedConfig{Key: key, Value: v}, nil
	}
	v, found, err := s.GetConfigValue(ctx, key, config.ScopeSystem, "")
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("store: get effective value %s: %w", key, err)
	}
	if found {
		cache.Set(key, config.ScopeSystem, "", v)
		return ResolvedConfig{Key: key, Value: v}, nil
	}

	def, err := s.ConfigDefinition(ctx, key)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("store: get effective value %s: no definition: %w", key, err)
	}
	return ResolvedConfig{Key: key, Value: def.DefaultValue}, nil
}

// UpdateUserConfig writes a user-scope override for key and invalidates
// every cached entry for it, so a subsequent GetEffectiveValue for any user
// observes the write immediately rather than waiting out the TTL.
func (s *Store) UpdateUserConfig(ctx context.Context, cache *config.Cache, key, userID, value string) error {
	if err := s.SetConfigValue(ctx, ConfigValue{Key: key, Scope: config.ScopeUserOverride, UserID: userID, Value: value}); err != nil {
		return fmt.Errorf("store: update user config %s: %w", key, err)
	}
	cache.InvalidateAllForKey(key)
	return nil
}
