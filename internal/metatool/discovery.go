package metatool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/store"
)

// ToolHit is one entry in a discover_tools/browse_tool_domain result.
type ToolHit struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Domain      string    `json:"domain"`
	ServerID    uuid.UUID `json:"serverId"`
	Score       float32   `json:"score"`
}

// ServerSummary is the per-provider metadata keyed alongside a discovery
// result's tool list.
type ServerSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// DiscoverResult is the shared response shape for discover_tools and
// browse_tool_domain.
type DiscoverResult struct {
	Tools      []ToolHit                `json:"tools"`
	Servers    map[string]ServerSummary `json:"servers"`
	Suggestion string                   `json:"suggestion,omitempty"`
}

// DiscoverTools ranks tools by semantic similarity to query, restricted to
// providers userID may see and, if domain is non-empty, to that domain.
func (s *Service) DiscoverTools(ctx context.Context, userID, query, domain string) (DiscoverResult, error) {
	start := time.Now()
	defer func() {
		observe.DefaultMetrics().DiscoveryQueryDuration.Record(ctx, time.Since(start).Seconds())
	}()

	accessible, err := s.Store.AccessibleProviders(ctx, userID)
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("metatool: discover_tools: %w", err)
	}
	if len(accessible) == 0 {
		return DiscoverResult{
			Tools:      []ToolHit{},
			Servers:    map[string]ServerSummary{},
			Suggestion: "No tools matched your query — you may not have access to any providers yet.",
		}, nil
	}
	providerByID := make(map[uuid.UUID]store.Provider, len(accessible))
	ids := make([]uuid.UUID, 0, len(accessible))
	for _, p := range accessible {
		providerByID[p.ID] = p
		ids = append(ids, p.ID)
	}

	vector, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("metatool: embed query: %w", err)
	}

	matches, err := s.Store.FindSimilarTools(ctx, s.EmbeddingTable, vector, s.topKFor(ctx, userID), store.ToolIndexFilter{
		Domain:        domain,
		ProviderIDs:   ids,
		MinSimilarity: defaultMinSimilarity,
	})
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("metatool: find similar tools: %w", err)
	}

	result := buildDiscoverResult(matches, providerByID)
	if len(result.Tools) == 0 {
		result.Suggestion = "No tools matched your query — try a broader query or browse a domain instead."
	}
	return result, nil
}

// BrowseToolDomain returns every visible tool tagged with domain, unordered
// by relevance (score is always 1 since there is no query to rank against).
func (s *Service) BrowseToolDomain(ctx context.Context, userID, domain string) (DiscoverResult, error) {
	accessible, err := s.Store.AccessibleProviders(ctx, userID)
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("metatool: browse_tool_domain: %w", err)
	}

	providerByID := make(map[uuid.UUID]store.Provider, len(accessible))
	var result DiscoverResult
	result.Servers = map[string]ServerSummary{}
	result.Tools = []ToolHit{}

	for _, p := range accessible {
		if p.Domain != domain {
			continue
		}
		providerByID[p.ID] = p
		tools, err := s.Store.ToolsByProvider(ctx, p.ID)
		if err != nil {
			return DiscoverResult{}, fmt.Errorf("metatool: list tools for provider %s: %w", p.Name, err)
		}
		for _, t := range tools {
			result.Tools = append(result.Tools, ToolHit{
				ID: t.ID, Name: t.Name, Description: t.Description,
				Domain: p.Domain, ServerID: p.ID, Score: 1,
			})
		}
	}

	for id, p := range providerByID {
		result.Servers[id.String()] = ServerSummary{ID: p.ID, Name: p.Name, Description: p.Description}
	}
	if len(result.Tools) == 0 {
		result.Suggestion = fmt.Sprintf("No tools found in domain %q — check the domain name or use discover_tools instead.", domain)
	}
	return result, nil
}

// topKFor resolves the effective discover_tools.max_results for userID,
// falling back to defaultTopK if no cache is wired, the key isn't seeded, or
// the stored value doesn't parse as a positive int.
func (s *Service) topKFor(ctx context.Context, userID string) int {
	if s.Cache == nil {
		return defaultTopK
	}
	resolved, err := s.Store.GetEffectiveValue(ctx, s.Cache, maxResultsConfigKey, userID)
	if err != nil {
		return defaultTopK
	}
	n, err := strconv.Atoi(resolved.Value)
	if err != nil || n <= 0 {
		return defaultTopK
	}
	return n
}

func buildDiscoverResult(matches []store.ToolMatch, providerByID map[uuid.UUID]store.Provider) DiscoverResult {
	result := DiscoverResult{
		Tools:   make([]ToolHit, 0, len(matches)),
		Servers: map[string]ServerSummary{},
	}
	for _, m := range matches {
		p, ok := providerByID[m.ProviderID]
		if !ok {
			continue // index is stale relative to the access snapshot; skip rather than leak
		}
		result.Tools = append(result.Tools, ToolHit{
			ID:          m.Tool.ID,
			Name:        m.Tool.Name,
			Description: m.Tool.Description,
			Domain:      p.Domain,
			ServerID:    p.ID,
			Score:       m.Similarity,
		})
		result.Servers[p.ID.String()] = ServerSummary{ID: p.ID, Name: p.Name, Description: p.Description}
	}
	return result
}
