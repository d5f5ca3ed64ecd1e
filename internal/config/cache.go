package config

import (
	"sync"
	"time"
)

// System-scope and user-override-scope TTLs, matching the reference
// implementation's ConfigCache constants exactly.
const (
	SystemTTL       = 300 * time.Second
	UserOverrideTTL = 30 * time.Second
)

// Scope is the tier at which a ConfigValue is stored.
type Scope string

const (
	ScopeSystem       Scope = "system"
	ScopeUserOverride Scope = "user-override"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache is an in-memory, TTL-bounded cache over resolved ConfigValue rows,
// keyed by (key, scope, user-or-none). System-scope entries live for
// [SystemTTL]; user-override entries live for [UserOverrideTTL].
//
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	systemTTL       time.Duration
	userOverrideTTL time.Duration

	now func() time.Time
}

// NewCache creates a [Cache] with the default TTLs.
func NewCache() *Cache {
	return &Cache{
		entries:         make(map[string]cacheEntry),
		systemTTL:       SystemTTL,
		userOverrideTTL: UserOverrideTTL,
		now:             time.Now,
	}
}

func cacheKey(key string, scope Scope, userID string) string {
	uid := userID
	if uid == "" || scope == ScopeSystem {
		uid = "_"
	}
	return key + ":" + string(scope) + ":" + uid
}

// Get returns the cached value for (key, scope, userID) and whether it is
// present and unexpired. userID is ignored (treated as "_") for system scope.
func (c *Cache) Get(key string, scope Scope, userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(key, scope, userID)]
	if !ok || c.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// Set inserts or updates a cached value, resetting its TTL.
func (c *Cache) Set(key string, scope Scope, userID, value string) {
	ttl := c.userOverrideTTL
	if scope == ScopeSystem {
		ttl = c.systemTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(key, scope, userID)] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Invalidate removes one cached entry.
func (c *Cache) Invalidate(key string, scope Scope, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(key, scope, userID))
}

// InvalidateAllForKey removes every cached entry for key across all scopes
// and users. Called after update_user_config/update_system_config so a
// subsequent get_effective_value reflects the write immediately, even before
// the TTL elapses.
func (c *Cache) InvalidateAllForKey(key string) {
	prefix := key + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for ck := range c.entries {
		if len(ck) >= len(prefix) && ck[:len(prefix)] == prefix {
			delete(c.entries, ck)
		}
	}
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
