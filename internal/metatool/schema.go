package metatool

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/store"
)

// GetToolSchema returns the stored manifest for toolID verbatim, if toolID
// resolves to a tool on a provider userID may see.
func (s *Service) GetToolSchema(ctx context.Context, userID string, toolID uuid.UUID) (json.RawMessage, error) {
	tool, _, err := s.resolveVisibleTool(ctx, userID, toolID)
	if err != nil {
		return nil, err
	}
	return tool.Schema, nil
}

// resolveVisibleTool looks up toolID and confirms userID may see its
// provider, returning brokererr.KindNotFound for either a missing tool or a
// provider the caller can't see (the two are indistinguishable to the
// caller by design).
func (s *Service) resolveVisibleTool(ctx context.Context, userID string, toolID uuid.UUID) (store.Tool, store.Provider, error) {
	tool, err := s.Store.ToolByID(ctx, toolID)
	if err != nil {
		return store.Tool{}, store.Provider{}, brokererr.New(brokererr.KindNotFound, "tool not found", err)
	}

	accessible, err := s.Store.AccessibleProviders(ctx, userID)
	if err != nil {
		return store.Tool{}, store.Provider{}, err
	}
	for _, p := range accessible {
		if p.ID == tool.ProviderID {
			return tool, p, nil
		}
	}
	return store.Tool{}, store.Provider{}, brokererr.New(brokererr.KindNotFound, "tool not found", nil)
}
