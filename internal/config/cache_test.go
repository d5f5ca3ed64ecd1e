package config

import "testing"

func TestCacheGetMissing(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("unknown", ScopeSystem, ""); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheSetAndGetRoundTrip(t *testing.T) {
	c := NewCache()
	c.Set("k1", ScopeSystem, "", "val1")
	got, ok := c.Get("k1", ScopeSystem, "")
	if !ok || got != "val1" {
		t.Errorf("Get = (%q, %v), want (val1, true)", got, ok)
	}
}

func TestCacheSetWithUserID(t *testing.T) {
	c := NewCache()
	c.Set("k1", ScopeUserOverride, "u1", "val_u1")
	c.Set("k1", ScopeUserOverride, "u2", "val_u2")

	if got, ok := c.Get("k1", ScopeUserOverride, "u1"); !ok || got != "val_u1" {
		t.Errorf("u1 = (%q, %v)", got, ok)
	}
	if got, ok := c.Get("k1", ScopeUserOverride, "u2"); !ok || got != "val_u2" {
		t.Errorf("u2 = (%q, %v)", got, ok)
	}
}

func TestCacheInvalidateRemovesSpecificEntry(t *testing.T) {
	c := NewCache()
	c.Set("k1", ScopeSystem, "", "val1")
	c.Set("k2", ScopeSystem, "", "val2")
	c.Invalidate("k1", ScopeSystem, "")

	if _, ok := c.Get("k1", ScopeSystem, ""); ok {
		t.Error("k1 should be invalidated")
	}
	if got, ok := c.Get("k2", ScopeSystem, ""); !ok || got != "val2" {
		t.Errorf("k2 = (%q, %v), want (val2, true)", got, ok)
	}
}

func TestCacheInvalidateAllForKeyRemovesAllScopes(t *testing.T) {
	c := NewCache()
	c.Set("k1", ScopeSystem, "", "sys")
	c.Set("k1", ScopeUserOverride, "u1", "usr")
	c.Set("k2", ScopeSystem, "", "other")

	c.InvalidateAllForKey("k1")

	if _, ok := c.Get("k1", ScopeSystem, ""); ok {
		t.Error("k1 system should be invalidated")
	}
	if _, ok := c.Get("k1", ScopeUserOverride, "u1"); ok {
		t.Error("k1 user-override should be invalidated")
	}
	if got, ok := c.Get("k2", ScopeSystem, ""); !ok || got != "other" {
		t.Errorf("k2 = (%q, %v), want (other, true)", got, ok)
	}
}

func TestCacheClearRemovesAllEntries(t *testing.T) {
	c := NewCache()
	c.Set("k1", ScopeSystem, "", "v1")
	c.Set("k2", ScopeSystem, "", "v2")
	c.Clear()

	if _, ok := c.Get("k1", ScopeSystem, ""); ok {
		t.Error("k1 should be cleared")
	}
	if _, ok := c.Get("k2", ScopeSystem, ""); ok {
		t.Error("k2 should be cleared")
	}
}

func TestCacheExpiredEntryReturnsFalse(t *testing.T) {
	c := NewCache()
	c.systemTTL = 0
	c.Set("k1", ScopeSystem, "", "val1")
	if _, ok := c.Get("k1", ScopeSystem, ""); ok {
		t.Error("expected entry with zero TTL to already be expired")
	}
}
