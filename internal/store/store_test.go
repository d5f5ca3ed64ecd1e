package store_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/store"
)

const testEmbeddingDim = 4
const testToolEmbeddingTable = "tool_embeddings_test"

// testDSN returns the test database DSN from the environment, or skips the
// test if BROKER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("BROKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BROKER_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	s, err := store.Open(ctx, dsn, testToolEmbeddingTable, testEmbeddingDim)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		s.Pool().Exec(ctx, `DROP TABLE IF EXISTS `+testToolEmbeddingTable+` CASCADE`)
		s.Pool().Exec(ctx, `TRUNCATE providers, config_definitions, bearer_tokens, audit_entries CASCADE`)
		s.Close()
	})
	return s
}

func TestProviderCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := store.Provider{
		ID:          uuid.New(),
		Name:        "filesystem",
		Description: "local filesystem access",
		Domain:      "files",
		Transport:   config.TransportStdio,
		Config:      json.RawMessage(`{"command":"mcp-fs-server"}`),
		Visibility:  store.VisibilityVisible,
		Enabled:     true,
		Ownership:   store.OwnershipBuiltIn,
	}
	if err := s.UpsertProvider(ctx, p); err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	got, err := s.GetProviderByName(ctx, "filesystem")
	if err != nil {
		t.Fatalf("GetProviderByName: %v", err)
	}
	if got.ID != p.ID || got.Domain != "files" {
		t.Errorf("GetProviderByName: got %+v", got)
	}

	if err := s.SetProviderEnabled(ctx, p.ID, false); err != nil {
		t.Fatalf("SetProviderEnabled: %v", err)
	}
	got, _ = s.GetProvider(ctx, p.ID)
	if got.Enabled {
		t.Error("expected provider to be disabled")
	}

	list, err := s.ListProviders(ctx)
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListProviders: want 1, got %d", len(list))
	}

	if err := s.DeleteProvider(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProvider: %v", err)
	}
	if _, err := s.GetProvider(ctx, p.ID); err == nil {
		t.Error("expected error fetching deleted provider")
	}
}

func TestUserPreferenceOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := store.Provider{ID: uuid.New(), Name: "weather", Transport: config.TransportHTTP, Config: json.RawMessage(`{}`), Ownership: store.OwnershipBuiltIn}
	if err := s.UpsertProvider(ctx, p); err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	if _, found, err := s.UserPreference(ctx, "alice", p.ID); err != nil || found {
		t.Fatalf("expected no preference initially, found=%v err=%v", found, err)
	}

	if err := s.SetUserPreference(ctx, store.UserProviderPreference{UserID: "alice", ProviderID: p.ID, Enabled: false}); err != nil {
		t.Fatalf("SetUserPreference: %v", err)
	}
	enabled, found, err := s.UserPreference(ctx, "alice", p.ID)
	if err != nil || !found || enabled {
		t.Errorf("UserPreference: got (%v, %v), err=%v", enabled, found, err)
	}
}

func TestToolsReplaceAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := store.Provider{ID: uuid.New(), Name: "fs", Transport: config.TransportStdio, Config: json.RawMessage(`{}`), Ownership: store.OwnershipBuiltIn}
	if err := s.UpsertProvider(ctx, p); err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	tools := []store.Tool{
		{Name: "read_file", Description: "reads a file", Schema: json.RawMessage(`{}`)},
		{Name: "write_file", Description: "writes a file", Schema: json.RawMessage(`{}`)},
	}
	if err := s.ReplaceTools(ctx, p.ID, tools); err != nil {
		t.Fatalf("ReplaceTools: %v", err)
	}

	got, err := s.ToolsByProvider(ctx, p.ID)
	if err != nil {
		t.Fatalf("ToolsByProvider: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ToolsByProvider: want 2, got %d", len(got))
	}

	single, err := s.ToolByProviderAndName(ctx, p.ID, "read_file")
	if err != nil {
		t.Fatalf("ToolByProviderAndName: %v", err)
	}
	if single.Description != "reads a file" {
		t.Errorf("ToolByProviderAndName: got %+v", single)
	}

	// Re-running ReplaceTools with fewer tools drops the old ones.
	if err := s.ReplaceTools(ctx, p.ID, tools[:1]); err != nil {
		t.Fatalf("ReplaceTools (shrink): %v", err)
	}
	got, _ = s.ToolsByProvider(ctx, p.ID)
	if len(got) != 1 {
		t.Errorf("ToolsByProvider after shrink: want 1, got %d", len(got))
	}
}

func TestFindSimilarTools(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := store.Provider{ID: uuid.New(), Name: "search", Domain: "web", Transport: config.TransportHTTP, Config: json.RawMessage(`{}`), Ownership: store.OwnershipBuiltIn}
	if err := s.UpsertProvider(ctx, p); err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	tools := []store.Tool{
		{Name: "web_search", Description: "search the web", Schema: json.RawMessage(`{}`)},
		{Name: "fetch_url", Description: "fetch a URL", Schema: json.RawMessage(`{}`)},
	}
	if err := s.ReplaceTools(ctx, p.ID, tools); err != nil {
		t.Fatalf("ReplaceTools: %v", err)
	}
	stored, _ := s.ToolsByProvider(ctx, p.ID)

	for i, tl := range stored {
		vec := make([]float32, testEmbeddingDim)
		vec[i%testEmbeddingDim] = 1
		if err := s.IndexTool(ctx, testToolEmbeddingTable, tl.ID, p.ID, "web", vec); err != nil {
			t.Fatalf("IndexTool: %v", err)
		}
	}

	query := make([]float32, testEmbeddingDim)
	query[0] = 1
	matches, err := s.FindSimilarTools(ctx, testToolEmbeddingTable, query, 2, store.ToolIndexFilter{})
	if err != nil {
		t.Fatalf("FindSimilarTools: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("FindSimilarTools: want 2, got %d", len(matches))
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("expected results ordered by descending similarity")
	}

	domainFiltered, err := s.FindSimilarTools(ctx, testToolEmbeddingTable, query, 5, store.ToolIndexFilter{Domain: "nonexistent"})
	if err != nil {
		t.Fatalf("FindSimilarTools domain filter: %v", err)
	}
	if len(domainFiltered) != 0 {
		t.Errorf("domain filter: want 0, got %d", len(domainFiltered))
	}
}

func TestConfigValueScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertConfigDefinition(ctx, store.ConfigDefinition{Key: "max_results", ValueType: "int", DefaultValue: "10"}); err != nil {
		t.Fatalf("UpsertConfigDefinition: %v", err)
	}

	defs, err := s.ConfigDefinitions(ctx)
	if err != nil || len(defs) != 1 {
		t.Fatalf("ConfigDefinitions: %v, %d", err, len(defs))
	}

	if err := s.SetConfigValue(ctx, store.ConfigValue{Key: "max_results", Scope: config.ScopeSystem, Value: "25"}); err != nil {
		t.Fatalf("SetConfigValue system: %v", err)
	}
	if err := s.SetConfigValue(ctx, store.ConfigValue{Key: "max_results", Scope: config.ScopeUserOverride, UserID: "bob", Value: "5"}); err != nil {
		t.Fatalf("SetConfigValue user: %v", err)
	}

	sysVal, found, err := s.GetConfigValue(ctx, "max_results", config.ScopeSystem, "")
	if err != nil || !found || sysVal != "25" {
		t.Errorf("system value: got (%q, %v), err=%v", sysVal, found, err)
	}
	userVal, found, err := s.GetConfigValue(ctx, "max_results", config.ScopeUserOverride, "bob")
	if err != nil || !found || userVal != "5" {
		t.Errorf("user value: got (%q, %v), err=%v", userVal, found, err)
	}

	if err := s.DeleteConfigValue(ctx, "max_results", config.ScopeUserOverride, "bob"); err != nil {
		t.Fatalf("DeleteConfigValue: %v", err)
	}
	if _, found, _ := s.GetConfigValue(ctx, "max_results", config.ScopeUserOverride, "bob"); found {
		t.Error("expected user override to be gone after delete")
	}
}

func TestGetEffectiveValueHierarchyAndCacheCoherence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cache := config.NewCache()

	if err := s.UpsertConfigDefinition(ctx, store.ConfigDefinition{Key: "max_results", ValueType: "int", DefaultValue: "10"}); err != nil {
		t.Fatalf("UpsertConfigDefinition: %v", err)
	}

	resolved, err := s.GetEffectiveValue(ctx, cache, "max_results", "alice")
	if err != nil || resolved.Value != "10" || resolved.IsOverridden {
		t.Fatalf("default: got (%+v), err=%v", resolved, err)
	}

	if err := s.SetConfigValue(ctx, store.ConfigValue{Key: "max_results", Scope: config.ScopeSystem, Value: "25"}); err != nil {
		t.Fatalf("SetConfigValue system: %v", err)
	}
	cache.InvalidateAllForKey("max_results")
	resolved, err = s.GetEffectiveValue(ctx, cache, "max_results", "alice")
	if err != nil || resolved.Value != "25" || resolved.IsOverridden {
		t.Fatalf("system scope: got (%+v), err=%v", resolved, err)
	}

	if err := s.UpdateUserConfig(ctx, cache, "max_results", "alice", "5"); err != nil {
		t.Fatalf("UpdateUserConfig: %v", err)
	}
	resolved, err = s.GetEffectiveValue(ctx, cache, "max_results", "alice")
	if err != nil || resolved.Value != "5" || !resolved.IsOverridden {
		t.Fatalf("user override after update: got (%+v), err=%v", resolved, err)
	}

	// Another user still sees the system scope value; update_user_config for
	// alice must not have clobbered the system-wide cache entry.
	resolved, err = s.GetEffectiveValue(ctx, cache, "max_results", "bob")
	if err != nil || resolved.Value != "25" || resolved.IsOverridden {
		t.Fatalf("other user unaffected: got (%+v), err=%v", resolved, err)
	}
}

func TestBearerTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tok := store.BearerToken{ID: uuid.New(), UserID: "carol", Name: "ci-key", TokenHash: "deadbeef"}
	if err := s.CreateBearerToken(ctx, tok); err != nil {
		t.Fatalf("CreateBearerToken: %v", err)
	}

	got, err := s.BearerTokenByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("BearerTokenByHash: %v", err)
	}
	if got.UserID != "carol" {
		t.Errorf("BearerTokenByHash: got %+v", got)
	}

	list, err := s.BearerTokensByUser(ctx, "carol")
	if err != nil || len(list) != 1 {
		t.Fatalf("BearerTokensByUser: %v, %d", err, len(list))
	}

	if err := s.RevokeBearerToken(ctx, tok.ID, got.CreatedAt); err != nil {
		t.Fatalf("RevokeBearerToken: %v", err)
	}
	revoked, _ := s.BearerTokenByHash(ctx, "deadbeef")
	if revoked.RevokedAt == nil {
		t.Error("expected RevokedAt to be set")
	}

	if err := s.RevokeBearerToken(ctx, tok.ID, got.CreatedAt); err == nil {
		t.Error("expected error revoking an already-revoked token")
	}
}

func TestAuditAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		success := i != 1
		if err := s.AppendAudit(ctx, store.AuditEntry{
			UserID:   "dave",
			ToolName: "web_search",
			Success:  success,
			Detail:   json.RawMessage(`{}`),
		}); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	entries, err := s.QueryAudit(ctx, store.AuditQuery{UserID: "dave"})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("QueryAudit: want 3, got %d", len(entries))
	}
	// Most recent first.
	if entries[0].ID < entries[1].ID {
		t.Error("expected entries ordered most-recent-first")
	}
}
