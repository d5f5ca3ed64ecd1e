package metatool

import (
	"context"
	"fmt"
	"strings"

	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/store"
)

// ReindexResult summarizes a reindex_tools run: how many tool embeddings
// were written, how many providers were visited, and any per-provider
// failures encountered along the way (a failing provider doesn't abort the
// rest of the run).
type ReindexResult struct {
	IndexedCount  int      `json:"indexedCount"`
	ProviderCount int      `json:"providerCount"`
	Errors        []string `json:"errors,omitempty"`
}

// ReindexAll recomputes and upserts embeddings for every tool across every
// registered provider. Per-provider failures are collected rather than
// aborting the run, so one misbehaving provider doesn't block reindexing
// the rest.
func (s *Service) ReindexAll(ctx context.Context) (ReindexResult, error) {
	providers, err := s.Store.ListProviders(ctx)
	if err != nil {
		return ReindexResult{}, fmt.Errorf("metatool: reindex: list providers: %w", err)
	}

	var result ReindexResult
	result.ProviderCount = len(providers)

	for _, p := range providers {
		n, err := s.reindexProvider(ctx, p)
		result.IndexedCount += n
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p.Name, err))
		}
	}
	if result.IndexedCount > 0 {
		observe.DefaultMetrics().ReindexCount.Add(ctx, int64(result.IndexedCount))
	}
	return result, nil
}

func (s *Service) reindexProvider(ctx context.Context, p store.Provider) (int, error) {
	tools, err := s.Store.ToolsByProvider(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}
	if len(tools) == 0 {
		return 0, nil
	}

	texts := make([]string, len(tools))
	for i, t := range tools {
		texts[i] = embeddingText(p, t)
	}

	vectors, err := s.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %d tools: %w", len(tools), err)
	}

	indexed := 0
	for i, t := range tools {
		if err := s.Store.IndexTool(ctx, s.EmbeddingTable, t.ID, p.ID, p.Domain, vectors[i]); err != nil {
			return indexed, fmt.Errorf("index tool %s: %w", t.Name, err)
		}
		indexed++
	}
	return indexed, nil
}

// embeddingText composes the text embedded for one tool: the provider's
// name and description, then the tool's own description. Blank lines for a
// missing description are elided rather than left as empty lines.
func embeddingText(p store.Provider, t store.Tool) string {
	lines := []string{"Server: " + p.Name}
	if p.Description != "" {
		lines = append(lines, "", p.Description)
	}
	if t.Description != "" {
		lines = append(lines, "", t.Description)
	}
	return strings.Join(lines, "\n")
}
