package metatool

import (
	"context"
	"fmt"
	"sort"
)

// ToolDomain is one entry in list_tool_domains: a synthesized summary of a
// domain tag, since providers carry domain as a plain string column rather
// than a separate domains table.
type ToolDomain struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ToolCount   int    `json:"toolCount"`
}

// ListToolDomains returns every domain tag present among providers userID
// may see, with a count of the tools each contributes.
func (s *Service) ListToolDomains(ctx context.Context, userID string) ([]ToolDomain, error) {
	accessible, err := s.Store.AccessibleProviders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("metatool: list_tool_domains: %w", err)
	}

	counts := map[string]int{}
	for _, p := range accessible {
		tools, err := s.Store.ToolsByProvider(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("metatool: list tools for provider %s: %w", p.Name, err)
		}
		counts[p.Domain] += len(tools)
	}

	domains := make([]ToolDomain, 0, len(counts))
	for domain, count := range counts {
		domains = append(domains, ToolDomain{
			ID:          domain,
			Name:        domain,
			Description: fmt.Sprintf("Tools tagged %q", domain),
			ToolCount:   count,
		})
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].ID < domains[j].ID })
	return domains, nil
}
