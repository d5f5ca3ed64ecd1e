package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/store"
)

// accessStore is the slice of *store.Store AccessControlHook needs to
// evaluate the access predicate.
type accessStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (store.Provider, error)
	UserPreference(ctx context.Context, userID string, providerID uuid.UUID) (enabled, found bool, err error)
}

// AccessControlHook blocks calls to providers the user hasn't enabled. A
// user sees provider P iff (P enabled AND visible AND not explicitly
// disabled) OR the user has explicitly enabled P. Meta-tool calls (no
// provider_id) are always allowed.
type AccessControlHook struct {
	store accessStore
}

// NewAccessControlHook constructs an AccessControlHook.
func NewAccessControlHook(store accessStore) *AccessControlHook {
	return &AccessControlHook{store: store}
}

func (h *AccessControlHook) BeforeCall(ctx *HookContext, _ json.RawMessage) error {
	if ctx.ProviderID == nil {
		return nil
	}
	providerID := *ctx.ProviderID

	allowed, err := h.hasAccess(context.Background(), ctx.UserID, providerID)
	if err != nil {
		return brokererr.New(brokererr.KindInternal, "access control: check failed", err)
	}
	if !allowed {
		return brokererr.New(brokererr.KindForbidden,
			fmt.Sprintf("user %s does not have access to provider %s", ctx.UserID, providerID), nil)
	}
	return nil
}

func (h *AccessControlHook) hasAccess(ctx context.Context, userID string, providerID uuid.UUID) (bool, error) {
	pref, found, err := h.store.UserPreference(ctx, userID, providerID)
	if err != nil {
		return false, err
	}
	if found && pref {
		return true, nil
	}
	if found && !pref {
		return false, nil
	}

	prov, err := h.store.GetProvider(ctx, providerID)
	if err != nil {
		return false, err
	}
	return prov.Enabled && prov.Visibility == store.VisibilityVisible, nil
}

func (h *AccessControlHook) AfterCall(_ *HookContext, _ *ToolCallOutcome) error {
	return nil
}

func (h *AccessControlHook) Name() string { return "AccessControlHook" }
