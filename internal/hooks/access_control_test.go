package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/store"
)

type fakeAccessStore struct {
	providers map[uuid.UUID]store.Provider
	prefs     map[string]map[uuid.UUID]bool // userID -> providerID -> enabled
}

func (f *fakeAccessStore) GetProvider(_ context.Context, id uuid.UUID) (store.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return store.Provider{}, brokererr.New(brokererr.KindNotFound, "provider not found", nil)
	}
	return p, nil
}

func (f *fakeAccessStore) UserPreference(_ context.Context, userID string, providerID uuid.UUID) (bool, bool, error) {
	byProvider, ok := f.prefs[userID]
	if !ok {
		return false, false, nil
	}
	enabled, ok := byProvider[providerID]
	return enabled, ok, nil
}

func TestAccessControlAllowsMetaToolCalls(t *testing.T) {
	h := NewAccessControlHook(&fakeAccessStore{})
	ctx := &HookContext{UserID: "u1"}
	if err := h.BeforeCall(ctx, nil); err != nil {
		t.Fatalf("expected meta-tool call to be allowed, got %v", err)
	}
}

func TestAccessControlAllowsVisibleEnabledProvider(t *testing.T) {
	pid := uuid.New()
	store := &fakeAccessStore{
		providers: map[uuid.UUID]store.Provider{
			pid: {ID: pid, Enabled: true, Visibility: store.VisibilityVisible},
		},
	}
	h := NewAccessControlHook(store)
	ctx := &HookContext{UserID: "u1", ProviderID: &pid}
	if err := h.BeforeCall(ctx, nil); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
}

func TestAccessControlDeniesHiddenProviderWithoutOptIn(t *testing.T) {
	pid := uuid.New()
	store := &fakeAccessStore{
		providers: map[uuid.UUID]store.Provider{
			pid: {ID: pid, Enabled: true, Visibility: store.VisibilityHidden},
		},
	}
	h := NewAccessControlHook(store)
	ctx := &HookContext{UserID: "u1", ProviderID: &pid}
	err := h.BeforeCall(ctx, nil)
	if err == nil {
		t.Fatal("expected denial for hidden provider with no explicit opt-in")
	}
	if brokererr.Of(err) != brokererr.KindForbidden {
		t.Errorf("got kind %v, want Forbidden", brokererr.Of(err))
	}
}

func TestAccessControlAllowsHiddenProviderWithExplicitOptIn(t *testing.T) {
	pid := uuid.New()
	store := &fakeAccessStore{
		providers: map[uuid.UUID]store.Provider{
			pid: {ID: pid, Enabled: true, Visibility: store.VisibilityHidden},
		},
		prefs: map[string]map[uuid.UUID]bool{
			"u1": {pid: true},
		},
	}
	h := NewAccessControlHook(store)
	ctx := &HookContext{UserID: "u1", ProviderID: &pid}
	if err := h.BeforeCall(ctx, nil); err != nil {
		t.Fatalf("expected access via explicit opt-in, got %v", err)
	}
}

func TestAccessControlDeniesExplicitOptOut(t *testing.T) {
	pid := uuid.New()
	store := &fakeAccessStore{
		providers: map[uuid.UUID]store.Provider{
			pid: {ID: pid, Enabled: true, Visibility: store.VisibilityVisible},
		},
		prefs: map[string]map[uuid.UUID]bool{
			"u1": {pid: false},
		},
	}
	h := NewAccessControlHook(store)
	ctx := &HookContext{UserID: "u1", ProviderID: &pid}
	err := h.BeforeCall(ctx, nil)
	if err == nil {
		t.Fatal("expected denial after explicit opt-out even though provider is visible")
	}
}

func TestAccessControlPropagatesStoreErrors(t *testing.T) {
	pid := uuid.New()
	h := NewAccessControlHook(&fakeAccessStore{})
	ctx := &HookContext{UserID: "u1", ProviderID: &pid}
	err := h.BeforeCall(ctx, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	var wrapErr *brokererr.Error
	if !errors.As(err, &wrapErr) {
		t.Fatalf("expected *brokererr.Error, got %T", err)
	}
}
